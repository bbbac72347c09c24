package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/format"
	"meshvault/internal/models"
	"meshvault/internal/store"
)

func newModelsCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and manage imported models",
	}

	cmd.AddCommand(
		newModelsListCmd(cfg, flags),
		newModelsShowCmd(cfg, flags),
		newModelsFlagCmd(cfg, flags),
		newModelsDeleteCmd(cfg, flags),
		newGroupsListCmd(cfg, flags),
	)
	return cmd
}

func newModelsListCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var favorite bool
	var groupID string
	var labelName string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				filter := store.ModelFilter{
					UserID:   lib.user.ID,
					GroupID:  strings.TrimSpace(groupID),
					Favorite: favorite,
					Limit:    limit,
					Offset:   offset,
				}
				if strings.TrimSpace(labelName) != "" {
					label, err := lib.labelByName(ctx, labelName)
					if err != nil {
						return err
					}
					filter.LabelID = label.ID
				}

				list, err := lib.store.ListModels(ctx, filter)
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(list)
				}

				rows := make([][]string, 0, len(list))
				for _, model := range list {
					filetype, size := "", ""
					if model.Blob != nil {
						filetype = model.Blob.Extension()
						size = format.Bytes(model.Blob.SizeBytes)
					}
					rows = append(rows, []string{model.ID, model.Name, filetype, size, model.GroupID, flagMarks(model.Flags)})
				}
				return writeTable(
					[]string{"ID", "Name", "Type", "Size", "Group", "Flags"},
					rows,
					[]format.Alignment{format.AlignLeft, format.AlignLeft, format.AlignLeft, format.AlignRight, format.AlignLeft, format.AlignLeft},
				)
			})
		},
	}

	cmd.Flags().BoolVar(&favorite, "favorite", false, "only favorites")
	cmd.Flags().StringVar(&groupID, "group", "", "only models in this group id")
	cmd.Flags().StringVar(&labelName, "label", "", "only models carrying this label")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of models")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of models to skip")
	return cmd
}

func newModelsShowCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one model",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				model, err := lib.store.GetModel(ctx, args[0])
				if err != nil {
					return err
				}
				if model == nil {
					return fmt.Errorf("model %s: %w", args[0], store.ErrNotFound)
				}
				if flags.json {
					return writeJSON(model)
				}

				lines := []string{
					fmt.Sprintf("id: %s", model.ID),
					fmt.Sprintf("name: %s", model.Name),
					fmt.Sprintf("created_at: %s", formatTime(model.CreatedAt)),
				}
				if model.Blob != nil {
					lines = append(lines,
						fmt.Sprintf("content_key: %s", model.Blob.ContentKey),
						fmt.Sprintf("filetype: %s", model.Blob.Filetype),
						fmt.Sprintf("size: %s", format.Bytes(model.Blob.SizeBytes)),
					)
					if model.Blob.External() {
						lines = append(lines, fmt.Sprintf("disk_path: %s", model.Blob.DiskPath))
					}
				}
				if model.GroupID != "" {
					lines = append(lines, fmt.Sprintf("group_id: %s", model.GroupID))
				}
				if model.Link != "" {
					lines = append(lines, fmt.Sprintf("link: %s", model.Link))
				}
				if len(model.Labels) > 0 {
					lines = append(lines, fmt.Sprintf("labels: %s", strings.Join(model.Labels, ", ")))
				}
				if marks := flagMarks(model.Flags); marks != "" {
					lines = append(lines, fmt.Sprintf("flags: %s", marks))
				}
				return writePlain("%s\n", strings.Join(lines, "\n"))
			})
		},
	}
}

func newModelsFlagCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var favorite bool
	var printed bool

	cmd := &cobra.Command{
		Use:   "flag <id>",
		Short: "Set the favorite and printed markers of a model",
		Args:  requireExactlyArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				var value models.ModelFlags
				if favorite {
					value |= models.FlagFavorite
				}
				if printed {
					value |= models.FlagPrinted
				}
				if err := lib.store.SetModelFlags(ctx, args[0], value); err != nil {
					return err
				}
				if flags.json {
					return writeJSON(map[string]any{"id": args[0], "flags": value})
				}
				return writePlain("%s %s\n", args[0], flagMarks(value))
			})
		},
	}

	cmd.Flags().BoolVar(&favorite, "favorite", false, "mark as favorite")
	cmd.Flags().BoolVar(&printed, "printed", false, "mark as printed")
	return cmd
}

func newModelsDeleteCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> [id...]",
		Short: "Delete models; blobs are reclaimed by gc",
		Args:  requireAtLeastArgs(1, "id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				for _, id := range args {
					if err := lib.store.DeleteModel(ctx, id); err != nil {
						return err
					}
				}
				if flags.json {
					return writeJSON(map[string]any{"deleted": args})
				}
				return writePlain("deleted %d model(s)\n", len(args))
			})
		},
	}
}

func newGroupsListCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List model groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				groups, err := lib.store.ListGroups(ctx, lib.user.ID)
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(groups)
				}
				rows := make([][]string, 0, len(groups))
				for _, group := range groups {
					rows = append(rows, []string{group.ID, group.Name, formatTime(group.CreatedAt)})
				}
				return writeTable([]string{"ID", "Name", "Created"}, rows, nil)
			})
		},
	}
}

func flagMarks(flags models.ModelFlags) string {
	marks := []string{}
	if flags.Has(models.FlagFavorite) {
		marks = append(marks, "favorite")
	}
	if flags.Has(models.FlagPrinted) {
		marks = append(marks, "printed")
	}
	return strings.Join(marks, ",")
}
