package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
	"meshvault/internal/ingest"
	"meshvault/internal/models"
)

func newGCCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var dryRun bool
	var limit int

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete blobs no model references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				coordinator, err := ingest.NewCoordinator(cfg, lib.store, lib.cas, ingest.WithLogger(slog.Default().With("component", "gc")))
				if err != nil {
					return err
				}
				pool, err := lib.thumbnailPool()
				if err != nil {
					return err
				}

				result, err := coordinator.CollectGarbage(ctx, ingest.GCOptions{
					Limit:  limit,
					DryRun: dryRun,
					Collected: func(blob models.Blob) {
						if err := pool.Remove(blob); err != nil {
							slog.Warn("thumbnail not removed", "content_key", blob.ContentKey, "error", err)
						}
					},
				})
				if err != nil {
					return err
				}

				if flags.json {
					return writeJSON(result)
				}
				verb := "removed"
				if dryRun {
					verb = "would remove"
				}
				if err := writePlain("%s %d blob(s), %s\n", verb, result.Removed, format.Bytes(result.Bytes)); err != nil {
					return err
				}
				if result.Skipped > 0 {
					return writePlain("kept %d blob(s) that are referenced again\n", result.Skipped)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list blobs without deleting them")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of blobs to collect")
	return cmd
}
