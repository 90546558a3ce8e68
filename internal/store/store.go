// Package store provides storage backends for UltimateBot transcripts.
//
// It includes an in-memory store and persistent SQLite, PostgreSQL, Redis and JSON-file stores.
// Every backend satisfies Store and is selected from a DSN by Open.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// DSN types reported by DetectDSNType.
const (
	DSNTypeMemory   = "memory"
	DSNTypeSQLite   = "sqlite3"
	DSNTypePostgres = "postgres"
	DSNTypeRedis    = "redis"
	DSNTypeJSON     = "json"
)

// Store persists transcript entries.
type Store interface {
	// SaveEntries appends entries in order. Entries whose ID is already stored are skipped.
	SaveEntries(ctx context.Context, entries []models.TranscriptEntry) error
	// ListEntries returns the newest limit entries, oldest first. limit <= 0 returns all.
	ListEntries(ctx context.Context, limit int) ([]models.TranscriptEntry, error)
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN      string // database DSN, Redis URL or JSON file path
	RedisKey string // list key for the Redis store
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.DSN = url }
}

// WithRedisKey sets the Redis list key that holds the transcript.
func WithRedisKey(key string) Option {
	return func(o *Opts) { o.RedisKey = key }
}

// WithJSONFile sets the path of the JSON transcript file.
func WithJSONFile(path string) Option {
	return func(o *Opts) { o.DSN = path }
}

// DetectDSNType returns the backend a DSN selects: postgres for postgres:// URLs and
// libpq key=value strings, redis for redis:// and rediss:// URLs, json for paths ending
// in .json, memory for an empty DSN, and sqlite3 for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	switch {
	case d == "":
		return DSNTypeMemory
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), isKeyValueDSN(lower):
		return DSNTypePostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return DSNTypeRedis
	case strings.HasSuffix(lower, ".json"):
		return DSNTypeJSON
	default:
		return DSNTypeSQLite
	}
}

// isKeyValueDSN reports whether dsn looks like "host=... user=... dbname=...".
func isKeyValueDSN(dsn string) bool {
	if strings.Contains(dsn, "?") {
		return false
	}
	for _, key := range []string{"host=", "dbname=", "user="} {
		if strings.Contains(dsn, key) {
			return true
		}
	}
	return false
}

// Open returns the backend selected by dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (Store, error) {
	kind := DetectDSNType(dsn)
	slog.Debug("store.Open: selecting backend", "type", kind)
	switch kind {
	case DSNTypePostgres:
		return NewPostgresStore(ctx, append([]Option{WithPostgresDSN(dsn)}, opts...)...)
	case DSNTypeRedis:
		return NewRedisStore(ctx, append([]Option{WithRedisURL(dsn)}, opts...)...)
	case DSNTypeJSON:
		return NewJSONFileStore(append([]Option{WithJSONFile(dsn)}, opts...)...)
	case DSNTypeSQLite:
		return NewSQLiteStore(ctx, append([]Option{WithSQLiteDSN(dsn)}, opts...)...)
	default:
		return NewInMemoryStore(), nil
	}
}

// InMemoryStore keeps entries in process memory. It is safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []models.TranscriptEntry
	ids     map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) SaveEntries(_ context.Context, entries []models.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if _, dup := s.ids[e.ID]; dup && e.ID != "" {
			continue
		}
		s.ids[e.ID] = struct{}{}
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *InMemoryStore) ListEntries(_ context.Context, limit int) ([]models.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.entries, limit), nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
