package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
	"meshvault/internal/importstate"
	"meshvault/internal/ingest"
	"meshvault/internal/thumbnail"
)

type importFlags struct {
	recursive    bool
	deleteAfter  bool
	asPath       bool
	link         string
	noThumbnails bool
}

type importReport struct {
	Path       string               `json:"path"`
	State      importstate.Snapshot `json:"state"`
	Thumbnails *thumbnail.Summary   `json:"thumbnails,omitempty"`
}

func newImportCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	opts := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import <path> [path...]",
		Short: "Import model files, directories or zip archives",
		Args:  requireAtLeastArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				logger := slog.Default().With("component", "import")
				coordinator, err := ingest.NewCoordinator(cfg, lib.store, lib.cas, ingest.WithLogger(logger))
				if err != nil {
					return err
				}
				pool, err := lib.thumbnailPool()
				if err != nil {
					return err
				}

				var observer importstate.Observer = importstate.LogObserver{Logger: logger}
				if !flags.json {
					observer = importstate.Multi(observer, importstate.NewConsoleObserver(os.Stderr))
				}

				reports := make([]importReport, 0, len(args))
				for _, path := range args {
					report, err := runImport(ctx, lib, coordinator, pool, path, opts, observer)
					reports = append(reports, report)
					if err != nil {
						if flags.json {
							_ = writeJSON(reports)
						}
						return err
					}
				}

				if flags.json {
					return writeJSON(reports)
				}
				return writeImportReports(reports)
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.recursive, "recursive", "r", false, "import subdirectories, one group per directory")
	cmd.Flags().BoolVar(&opts.deleteAfter, "delete-after-import", false, "remove source files once they are stored")
	cmd.Flags().BoolVar(&opts.asPath, "as-path", false, "reference files in place instead of copying them")
	cmd.Flags().StringVar(&opts.link, "link", "", "source URL recorded on every imported model")
	cmd.Flags().BoolVar(&opts.noThumbnails, "no-thumbnails", false, "skip thumbnail generation")

	return cmd
}

func runImport(ctx context.Context, lib *library, coordinator *ingest.Coordinator, pool *thumbnail.Pool, path string, opts *importFlags, observer importstate.Observer) (importReport, error) {
	report := importReport{Path: path}

	state, err := coordinator.Import(ctx, path, ingest.Options{
		UserID:            lib.user.ID,
		Recursive:         opts.recursive,
		DeleteAfterImport: opts.deleteAfter,
		ImportAsPath:      opts.asPath,
		Link:              opts.link,
		Observer:          observer,
	})
	if err != nil {
		if state != nil {
			report.State = state.Snapshot()
		}
		return report, fmt.Errorf("import %s: %w", path, err)
	}

	if !opts.noThumbnails {
		blobs, err := lib.store.ListBlobsForModels(ctx, state.ModelIDs())
		if err != nil {
			state.Fail(err.Error())
			report.State = state.Snapshot()
			return report, fmt.Errorf("list imported blobs: %w", err)
		}
		summary, err := thumbnail.RenderImported(ctx, pool, state, blobs)
		report.Thumbnails = &summary
		if err != nil {
			report.State = state.Snapshot()
			return report, fmt.Errorf("thumbnails for %s: %w", path, err)
		}
	}

	report.State = state.Snapshot()
	return report, nil
}

func writeImportReports(reports []importReport) error {
	rows := make([][]string, 0, len(reports))
	for _, report := range reports {
		snap := report.State
		groups := 0
		for _, set := range snap.Sets {
			if set.GroupID != "" {
				groups++
			}
		}
		thumbs := "-"
		if report.Thumbnails != nil {
			thumbs = fmt.Sprintf("%d/%d", report.Thumbnails.Rendered+report.Thumbnails.Embedded, report.Thumbnails.Requested)
		}
		rows = append(rows, []string{
			report.Path,
			snap.Status.String(),
			fmt.Sprintf("%d/%d", snap.ModelsFinished, snap.ModelsTotal),
			fmt.Sprintf("%d", groups),
			thumbs,
		})
	}
	return writeTable(
		[]string{"Path", "Status", "Models", "Groups", "Thumbnails"},
		rows,
		[]format.Alignment{format.AlignLeft, format.AlignLeft, format.AlignRight, format.AlignRight, format.AlignRight},
	)
}
