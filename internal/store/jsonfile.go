// This file implements the JSON-file transcript store: the whole history as one JSON array.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// DefaultJSONFileName is the conventional transcript file name.
const DefaultJSONFileName = "conversation_history.json"

// JSONFileStore keeps the transcript as an indented JSON array in a single file.
// Writes replace the file atomically through a temporary file and rename.
type JSONFileStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONFileStore creates the store, creating the parent directory if needed.
// An existing file is validated but not loaded until it is read.
func NewJSONFileStore(opts ...Option) (*JSONFileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("json transcript path not set")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DSN), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	s := &JSONFileStore{path: cfg.DSN}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	slog.Debug("NewJSONFileStore: using transcript file", "path", cfg.DSN)
	return s, nil
}

// load reads the file; a missing or empty file is an empty transcript.
func (s *JSONFileStore) load() ([]models.TranscriptEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript file %s: %w", s.path, err)
	}
	var entries []models.TranscriptEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse transcript file %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *JSONFileStore) SaveEntries(_ context.Context, entries []models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.ID] = struct{}{}
	}
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup && e.ID != "" {
			continue
		}
		seen[e.ID] = struct{}{}
		existing = append(existing, e)
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".transcript-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary transcript file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace transcript file: %w", err)
	}
	slog.Debug("JSONFileStore SaveEntries succeeded", "count", len(entries), "total", len(existing))
	return nil
}

func (s *JSONFileStore) ListEntries(_ context.Context, limit int) ([]models.TranscriptEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	return tail(entries, limit), nil
}

func (s *JSONFileStore) Close() error {
	return nil
}
