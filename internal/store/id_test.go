package store

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateID("md", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != 11 { // "md-" + 8 chars
			t.Fatalf("expected length 11, got %d: %s", len(id), id)
		}
		if id[:3] != "md-" {
			t.Fatalf("expected prefix md-, got %s", id[:3])
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := GenerateID("", nil)
		if err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil // first 2 calls collide
		}
		id, err := GenerateID("md", exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		exists := func(id string) (bool, error) {
			return true, nil
		}
		_, err := GenerateID("md", exists)
		if err == nil {
			t.Fatal("expected error after max attempts")
		}
	})
}

func TestTypedIDPrefixes(t *testing.T) {
	generators := map[string]func(func(string) (bool, error)) (string, error){
		"md-": GenerateModelID,
		"bl-": GenerateBlobID,
		"gp-": GenerateGroupID,
		"lb-": GenerateLabelID,
		"us-": GenerateUserID,
	}
	for prefix, generate := range generators {
		id, err := generate(nil)
		if err != nil {
			t.Fatalf("generate %s: %v", prefix, err)
		}
		if !strings.HasPrefix(id, prefix) {
			t.Fatalf("expected %s prefix, got %q", prefix, id)
		}
	}
}
