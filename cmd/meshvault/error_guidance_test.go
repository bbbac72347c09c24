package main

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"meshvault/internal/fault"
	"meshvault/internal/store"
)

func TestFormatCLIError_ConflictGuidance(t *testing.T) {
	err := fault.Conflict("cannot import %s as path", "kit.zip")
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: --as-path cannot be combined with archives or --delete-after-import.") {
		t.Fatalf("expected conflict guidance, got %v", lines)
	}
}

func TestFormatCLIError_UnsupportedGuidance(t *testing.T) {
	err := fault.Unsupported("part.gcode", "gcode")
	lines := formatCLIError(err)
	if len(lines) != 2 || lines[0] != err.Error() {
		t.Fatalf("expected error line plus hint, got %v", lines)
	}
}

func TestFormatCLIError_WrappedFileSystemGuidance(t *testing.T) {
	err := fmt.Errorf("import: %w", fault.FileSystem("open source", os.ErrNotExist))
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: check that the path exists and MESHVAULT_DATA_DIR is writable.") {
		t.Fatalf("expected filesystem guidance, got %v", lines)
	}
}

func TestFormatCLIError_LabelCycleGuidance(t *testing.T) {
	err := fmt.Errorf("set parent: %w", store.ErrLabelCycle)
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: a label cannot be placed under one of its own descendants.") {
		t.Fatalf("expected cycle guidance, got %v", lines)
	}
}

func TestFormatCLIError_PlainError(t *testing.T) {
	lines := formatCLIError(errors.New("boom"))
	if len(lines) != 1 || lines[0] != "boom" {
		t.Fatalf("expected only the error line, got %v", lines)
	}
	if formatCLIError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
