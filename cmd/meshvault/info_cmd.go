package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
	"meshvault/internal/store"
)

type infoReport struct {
	*store.LibraryInfo
	Version      string `json:"version"`
	DataDir      string `json:"data_dir"`
	DBPath       string `json:"db_path"`
	BlobDir      string `json:"blob_dir"`
	ThumbnailDir string `json:"thumbnail_dir"`
	ConfigFile   string `json:"config_file,omitempty"`
}

func newInfoCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show library paths and catalog counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				info, err := lib.store.Info(ctx)
				if err != nil {
					return err
				}
				report := infoReport{
					LibraryInfo:  info,
					Version:      version,
					DataDir:      cfg.DataDir,
					DBPath:       cfg.DBPath,
					BlobDir:      cfg.BlobDir(),
					ThumbnailDir: cfg.ThumbnailDir(),
					ConfigFile:   cfg.LoadedFrom,
				}
				if flags.json {
					return writeJSON(report)
				}

				rows := [][]string{
					{"version", report.Version},
					{"data_dir", report.DataDir},
					{"db_path", report.DBPath},
					{"schema_version", fmt.Sprint(info.SchemaVersion)},
					{"users", fmt.Sprint(info.Users)},
					{"models", fmt.Sprint(info.Models)},
					{"groups", fmt.Sprint(info.Groups)},
					{"labels", fmt.Sprint(info.Labels)},
					{"blobs", fmt.Sprintf("%d (%s)", info.Blobs, format.Bytes(info.BlobBytes))},
					{"external_blobs", fmt.Sprint(info.ExternalBlobs)},
					{"unreferenced_blobs", fmt.Sprint(info.UnreferencedBlobs)},
				}
				filetypes := make([]string, 0, len(info.Filetypes))
				for filetype := range info.Filetypes {
					filetypes = append(filetypes, filetype)
				}
				sort.Strings(filetypes)
				for _, filetype := range filetypes {
					rows = append(rows, []string{"filetype." + filetype, fmt.Sprint(info.Filetypes[filetype])})
				}
				return writeTable([]string{"Key", "Value"}, rows, nil)
			})
		},
	}
}
