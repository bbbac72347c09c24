package main

import (
	"context"
	"errors"

	"meshvault/internal/fault"
	"meshvault/internal/store"
	"meshvault/internal/thumbnail"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch fault.KindOf(err) {
	case fault.KindConflictingOptions:
		lines = append(lines, "hint: --as-path cannot be combined with archives or --delete-after-import.")
	case fault.KindUnsupportedFileType:
		lines = append(lines, "hint: enable g-code or STEP with: meshvault config set import.allow_gcode true (or import.allow_step).")
	case fault.KindArchive:
		lines = append(lines, "hint: archives must be flat; extract nested folders and import the directory with --recursive.")
	case fault.KindDatabase:
		lines = append(lines, "hint: run meshvault migrate --inspect to check the library schema.")
	case fault.KindFileSystem:
		lines = append(lines, "hint: check that the path exists and MESHVAULT_DATA_DIR is writable.")
	}

	switch {
	case errors.Is(err, store.ErrLabelCycle):
		lines = append(lines, "hint: a label cannot be placed under one of its own descendants.")
	case errors.Is(err, store.ErrNotFound):
		lines = append(lines, "hint: list existing ids with: meshvault models list or meshvault labels list")
	case errors.Is(err, thumbnail.ErrNoRenderer):
		lines = append(lines, "hint: set a renderer with: meshvault config set thumbnails.renderer <binary>")
	case errors.Is(err, context.Canceled):
		lines = append(lines, "hint: the operation was interrupted; rerun the import to pick up remaining files.")
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
