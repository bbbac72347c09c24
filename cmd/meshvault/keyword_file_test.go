package main

import (
	"context"
	"path/filepath"
	"testing"

	"meshvault/internal/store"
)

func TestParseKeywordFile(t *testing.T) {
	file, err := parseKeywordFile([]byte(`
labels:
  - name: " Dragons "
    parent: Creatures
    keywords: [dragon, wyvern]
  - name: Creatures
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(file.Labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(file.Labels))
	}
	if file.Labels[0].Name != "Dragons" || file.Labels[0].Parent != "Creatures" {
		t.Fatalf("unexpected first label: %+v", file.Labels[0])
	}
}

func TestParseKeywordFileRejectsDuplicatesAndBlankNames(t *testing.T) {
	if _, err := parseKeywordFile([]byte("labels:\n  - name: A\n  - name: A\n")); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := parseKeywordFile([]byte("labels:\n  - keywords: [x]\n")); err == nil {
		t.Fatal("expected missing name error")
	}
	if _, err := parseKeywordFile([]byte("labels: [")); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestApplyKeywordFile(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	file, err := parseKeywordFile([]byte(`
labels:
  - name: Dragons
    parent: Creatures
    keywords: [dragon, wyvern]
  - name: Creatures
    keywords: [creature]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	result, err := applyKeywordFile(ctx, st, "us-local", file)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 || result.Parented != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	index, err := st.KeywordIndex(ctx, "us-local")
	if err != nil {
		t.Fatalf("keyword index: %v", err)
	}
	if len(index["dragon"]) != 2 {
		t.Fatalf("expected dragon to imply the label and its parent, got %v", index["dragon"])
	}

	again, err := parseKeywordFile([]byte("labels:\n  - name: Dragons\n    keywords: [drake]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result, err = applyKeywordFile(ctx, st, "us-local", again)
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if result.Created != 0 || result.Updated != 1 {
		t.Fatalf("expected an update, got %+v", result)
	}
	dragons, err := st.GetLabelByName(ctx, "us-local", "Dragons")
	if err != nil || dragons == nil {
		t.Fatalf("get label: %v", err)
	}
	if len(dragons.Keywords) != 3 {
		t.Fatalf("expected merged keywords, got %v", dragons.Keywords)
	}
}

func TestApplyKeywordFileUnknownParent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	file, err := parseKeywordFile([]byte("labels:\n  - name: Boats\n    parent: Vehicles\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := applyKeywordFile(context.Background(), st, "us-local", file); err == nil {
		t.Fatal("expected unknown parent error")
	}
}
