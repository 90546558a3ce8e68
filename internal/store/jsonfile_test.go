package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONFileStore(t *testing.T) {
	s, err := NewJSONFileStore(WithJSONFile(filepath.Join(t.TempDir(), "state", DefaultJSONFileName)))
	if err != nil {
		t.Fatalf("NewJSONFileStore failed: %v", err)
	}
	exerciseStore(t, s)
}

func TestJSONFileStoreReadsLegacyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultJSONFileName)
	legacy := `[
  {"user_input": "hello", "response": "Hi there! What can I do for you?", "timestamp": "2024-01-02 09:15:00"}
]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewJSONFileStore(WithJSONFile(path))
	if err != nil {
		t.Fatalf("NewJSONFileStore failed: %v", err)
	}
	ctx := context.Background()
	if err := s.SaveEntries(ctx, sampleEntries(0, 1)); err != nil {
		t.Fatalf("SaveEntries error: %v", err)
	}
	all, err := s.ListEntries(ctx, 0)
	if err != nil {
		t.Fatalf("ListEntries error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Input != "hello" || all[0].Timestamp != "2024-01-02 09:15:00" {
		t.Errorf("legacy entry not preserved: %+v", all[0])
	}
}

func TestNewJSONFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONFileStore(WithJSONFile(path)); err == nil {
		t.Error("expected error for corrupt transcript file")
	}
}
