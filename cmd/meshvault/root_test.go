package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"meshvault/internal/config"
	"meshvault/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DBPath = filepath.Join(cfg.DataDir, config.DefaultDBFileName)
	cfg.Import.Parallelism = 2
	cfg.Thumbnails.Parallelism = 1
	return &cfg
}

func execute(t *testing.T, cfg *config.Config, args ...string) error {
	t.Helper()
	t.Setenv(logLevelEnvKey, "error")
	cmd := newRootCmd(cfg)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestImportThenCollect(t *testing.T) {
	cfg := testConfig(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "hull.stl"), []byte("solid hull\nendsolid hull\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "mast.stl"), []byte("solid mast\nendsolid mast\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := execute(t, cfg, "import", src, "--no-thumbnails", "--json"); err != nil {
		t.Fatalf("import: %v", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	list, err := st.ListModels(context.Background(), store.ModelFilter{UserID: "us-local"})
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 models, got %d", len(list))
	}
	for _, model := range list {
		if err := st.DeleteModel(context.Background(), model.ID); err != nil {
			t.Fatalf("delete model: %v", err)
		}
	}
	_ = st.Close()

	if err := execute(t, cfg, "gc", "--json"); err != nil {
		t.Fatalf("gc: %v", err)
	}

	st, err = store.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	leftover, err := st.ListUnreferencedBlobs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list unreferenced: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("expected gc to remove every blob, %d left", len(leftover))
	}
}

func TestImportConflictingOptionsFails(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "part.stl")
	if err := os.WriteFile(path, []byte("solid part\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	err := execute(t, cfg, "import", path, "--as-path", "--delete-after-import", "--json")
	if err == nil {
		t.Fatal("expected conflicting options error")
	}
	if lines := formatCLIError(err); len(lines) < 2 {
		t.Fatalf("expected a hint, got %v", lines)
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfg := testConfig(t)
	if err := execute(t, cfg, "info", "--log-level", "chatty"); err == nil {
		t.Fatal("expected invalid log level error")
	}
}
