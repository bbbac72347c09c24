package fault

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := FileSystem("open /tmp/x.stl", os.ErrNotExist)
	wrapped := fmt.Errorf("ingest: %w", base)

	if !IsKind(wrapped, KindFileSystem) {
		t.Fatalf("expected file_system kind, got %q", KindOf(wrapped))
	}
	if !errors.Is(wrapped, os.ErrNotExist) {
		t.Fatal("expected wrapped error to match os.ErrNotExist")
	}
	if got := base.Error(); got != "open /tmp/x.stl: file does not exist" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestNilErrorStaysNil(t *testing.T) {
	if err := Database("insert", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestConflictAndUnsupported(t *testing.T) {
	if !IsKind(Conflict("zip cannot be imported as path"), KindConflictingOptions) {
		t.Fatal("expected conflicting_options kind")
	}
	err := Unsupported("model.blend", "blend")
	if KindOf(err) != KindUnsupportedFileType {
		t.Fatalf("expected unsupported kind, got %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected empty kind for plain errors")
	}
}
