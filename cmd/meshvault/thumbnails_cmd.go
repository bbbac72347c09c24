package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
)

func newThumbnailsCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "thumbnails",
		Short: "Generate missing thumbnails for every stored blob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				pool, err := lib.thumbnailPool()
				if err != nil {
					return err
				}
				blobs, err := lib.store.ListReferencedBlobs(ctx)
				if err != nil {
					return fmt.Errorf("list blobs: %w", err)
				}
				summary, err := pool.RenderAll(ctx, blobs, overwrite, nil)
				if err != nil {
					return err
				}

				if flags.json {
					return writeJSON(summary)
				}
				return writeTable(
					[]string{"Requested", "Skipped", "Rendered", "Embedded", "Failed"},
					[][]string{{
						fmt.Sprint(summary.Requested),
						fmt.Sprint(summary.Skipped),
						fmt.Sprint(summary.Rendered),
						fmt.Sprint(summary.Embedded),
						fmt.Sprint(summary.Failed),
					}},
					[]format.Alignment{format.AlignRight, format.AlignRight, format.AlignRight, format.AlignRight, format.AlignRight},
				)
			})
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate thumbnails that already exist")
	return cmd
}
