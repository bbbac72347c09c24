package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
	"meshvault/internal/store"
)

func newExportBlobCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export-blob <model-id> <dest>",
		Short: "Write a model's original file to dest",
		Args:  requireExactlyArgs(2, "model id and destination are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				model, err := lib.store.GetModel(ctx, args[0])
				if err != nil {
					return err
				}
				if model == nil || model.Blob == nil {
					return fmt.Errorf("model %s: %w", args[0], store.ErrNotFound)
				}

				dest := args[1]
				if info, err := os.Stat(dest); err == nil && info.IsDir() {
					dest = filepath.Join(dest, model.Name+"."+model.Blob.Extension())
				}

				src, err := lib.cas.Open(ctx, *model.Blob)
				if err != nil {
					return err
				}
				defer src.Close()

				out, err := os.Create(dest)
				if err != nil {
					return fmt.Errorf("create %s: %w", dest, err)
				}
				written, err := io.Copy(out, src)
				if closeErr := out.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					_ = os.Remove(dest)
					return fmt.Errorf("export %s: %w", model.ID, err)
				}

				if flags.json {
					return writeJSON(map[string]any{"model_id": model.ID, "path": dest, "bytes": written})
				}
				return writePlain("%s (%s)\n", dest, format.Bytes(written))
			})
		},
	}
}
