package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
)

type globalFlags struct {
	json     bool
	logLevel string
	user     string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "meshvault",
		Short:         "Meshvault is a deduplicating library for 3D-printable models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := setupLogging(os.Stderr, flags.logLevel, cfg)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.user, "user", localUserName, "library user")

	cmd.AddCommand(
		newImportCmd(cfg, flags),
		newThumbnailsCmd(cfg, flags),
		newModelsCmd(cfg, flags),
		newLabelsCmd(cfg, flags),
		newGCCmd(cfg, flags),
		newExportBlobCmd(cfg, flags),
		newInfoCmd(cfg, flags),
		newMigrateCmd(cfg, flags),
		newConfigCmd(cfg),
	)

	return cmd
}
