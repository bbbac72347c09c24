package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meshvault/internal/config"
	"meshvault/internal/models"
)

func newLabelsCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage labels and the keywords that apply them",
	}

	keywordsCmd := &cobra.Command{
		Use:   "keywords",
		Short: "Manage label keywords",
	}
	keywordsCmd.AddCommand(newKeywordsAddCmd(cfg, flags), newKeywordsLoadCmd(cfg, flags))

	labelsCmd.AddCommand(
		newLabelsAddCmd(cfg, flags),
		newLabelsListCmd(cfg, flags),
		newLabelsParentCmd(cfg, flags),
		newLabelsAttachCmd(cfg, flags),
		keywordsCmd,
	)
	return labelsCmd
}

func newLabelsAddCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var parent string
	var color string
	var keywords string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a label",
		Args:  requireExactlyArgs(1, "label name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				label := &models.Label{
					UserID:   lib.user.ID,
					Name:     args[0],
					Color:    color,
					Keywords: keywordList(keywords),
				}
				if strings.TrimSpace(parent) != "" {
					parentLabel, err := lib.labelByName(ctx, parent)
					if err != nil {
						return err
					}
					label.ParentID = parentLabel.ID
				}
				if err := lib.store.CreateLabel(ctx, label); err != nil {
					return err
				}
				if flags.json {
					return writeJSON(label)
				}
				return writePlain("%s %s\n", label.ID, label.Name)
			})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent label name")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.Flags().StringVar(&keywords, "keywords", "", "comma-separated keywords")
	return cmd
}

func newLabelsListCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List labels with their keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				labels, err := lib.store.ListLabels(ctx, lib.user.ID)
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(labels)
				}

				names := make(map[string]string, len(labels))
				for _, label := range labels {
					names[label.ID] = label.Name
				}
				rows := make([][]string, 0, len(labels))
				for _, label := range labels {
					rows = append(rows, []string{label.ID, label.Name, names[label.ParentID], strings.Join(label.Keywords, ", ")})
				}
				return writeTable([]string{"ID", "Name", "Parent", "Keywords"}, rows, nil)
			})
		},
	}
}

func newLabelsParentCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var clearParent bool

	cmd := &cobra.Command{
		Use:   "parent <label> [parent]",
		Short: "Move a label under another label",
		Args: func(cmd *cobra.Command, args []string) error {
			if clearParent {
				return requireExactlyArgs(1, "label is required")(cmd, args)
			}
			return requireExactlyArgs(2, "label and parent are required")(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				label, err := lib.labelByName(ctx, args[0])
				if err != nil {
					return err
				}
				parentID := ""
				if !clearParent {
					parent, err := lib.labelByName(ctx, args[1])
					if err != nil {
						return err
					}
					parentID = parent.ID
				}
				if err := lib.store.SetLabelParent(ctx, label.ID, parentID); err != nil {
					return err
				}
				if flags.json {
					return writeJSON(map[string]string{"id": label.ID, "parent_id": parentID})
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearParent, "clear", false, "make the label a root")
	return cmd
}

func newLabelsAttachCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <label> <model-id> [model-id...]",
		Short: "Attach a label to models",
		Args:  requireAtLeastArgs(2, "label and model id(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				label, err := lib.labelByName(ctx, args[0])
				if err != nil {
					return err
				}
				attached := 0
				for _, modelID := range args[1:] {
					n, err := lib.store.AttachLabels(ctx, modelID, []string{label.ID})
					if err != nil {
						return fmt.Errorf("attach %s to %s: %w", label.Name, modelID, err)
					}
					attached += n
				}
				if flags.json {
					return writeJSON(map[string]int{"attached": attached})
				}
				return writePlain("attached %s to %d model(s)\n", label.Name, attached)
			})
		},
	}
}

func newKeywordsAddCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <label> <keyword> [keyword...]",
		Short: "Add keywords to a label",
		Args:  requireAtLeastArgs(2, "label and keyword(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				label, err := lib.labelByName(ctx, args[0])
				if err != nil {
					return err
				}
				return lib.store.AddKeywords(ctx, label.ID, args[1:])
			})
		},
	}
}

func newKeywordsLoadCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Create labels and keywords from a YAML file",
		Args:  requireExactlyArgs(1, "file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readKeywordFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withLibrary(ctx, cfg, flags, func(lib *library) error {
				result, err := applyKeywordFile(ctx, lib.store, lib.user.ID, file)
				if err != nil {
					return err
				}
				if flags.json {
					return writeJSON(result)
				}
				return writePlain("created %d, updated %d, parented %d label(s)\n", result.Created, result.Updated, result.Parented)
			})
		},
	}
}

// keywordList splits a comma separated flag value, dropping blanks and
// case-insensitive repeats.
func keywordList(value string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		key := strings.ToLower(part)
		if _, dup := seen[key]; part == "" || dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}
