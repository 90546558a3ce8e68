package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// Sink persists transcript entries. store.Store satisfies it.
type Sink interface {
	SaveEntries(ctx context.Context, entries []models.TranscriptEntry) error
}

// TranscriptOpts holds configuration for a Transcript.
type TranscriptOpts struct {
	MaxEntries int
	Sink       Sink
}

// TranscriptOption defines a configuration option for a Transcript.
type TranscriptOption func(*TranscriptOpts)

// WithMaxEntries caps the number of entries held in memory. 0 means unbounded.
func WithMaxEntries(n int) TranscriptOption {
	return func(o *TranscriptOpts) { o.MaxEntries = n }
}

// WithSink sets where entries are flushed.
func WithSink(s Sink) TranscriptOption {
	return func(o *TranscriptOpts) { o.Sink = s }
}

// Transcript is the append-only log of one running bot. It is safe for concurrent use.
//
// When MaxEntries is reached, held entries are flushed to the sink and released before the
// next append. Without a sink the oldest entry is dropped instead.
type Transcript struct {
	mu         sync.Mutex
	entries    []models.TranscriptEntry
	persisted  int    // entries[:persisted] are already in the sink
	lastStamp  string // timestamp of the newest entry ever appended, kept across spills
	maxEntries int
	sink       Sink
}

// NewTranscript creates an empty transcript.
func NewTranscript(opts ...TranscriptOption) *Transcript {
	var cfg TranscriptOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	return &Transcript{maxEntries: cfg.MaxEntries, sink: cfg.Sink}
}

// Append adds e to the end of the log and returns the entry as recorded.
//
// Timestamps never decrease along the log: an entry stamped earlier than the newest one
// (a slow turn finishing after a fast one) takes the newest timestamp instead.
func (t *Transcript) Append(ctx context.Context, e models.TranscriptEntry) models.TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	// TimestampLayout sorts lexically in time order.
	if e.Timestamp < t.lastStamp {
		e.Timestamp = t.lastStamp
	}
	t.lastStamp = e.Timestamp

	if t.maxEntries > 0 && len(t.entries) >= t.maxEntries {
		t.spill(ctx)
	}
	t.entries = append(t.entries, e)
	return e
}

// spill makes room for one entry. Caller must hold t.mu.
func (t *Transcript) spill(ctx context.Context) {
	if t.sink == nil {
		drop := len(t.entries) - t.maxEntries + 1
		slog.Debug("Transcript.spill: dropping oldest entries", "count", drop)
		t.entries = append(t.entries[:0:0], t.entries[drop:]...)
		return
	}
	if err := t.flushLocked(ctx); err != nil {
		slog.Error("Transcript.spill: flush failed, entries dropped", "error", err, "count", len(t.entries)-t.persisted)
	}
	t.entries = nil
	t.persisted = 0
}

// Entries returns a copy of the entries held in memory, oldest first.
func (t *Transcript) Entries() []models.TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries held in memory.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending returns how many held entries have not reached the sink yet.
func (t *Transcript) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) - t.persisted
}

// Flush writes entries not yet persisted to the sink. It is a no-op without a sink.
// Entries stay in memory after a successful flush.
func (t *Transcript) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(ctx)
}

func (t *Transcript) flushLocked(ctx context.Context) error {
	if t.sink == nil || t.persisted == len(t.entries) {
		return nil
	}
	batch := make([]models.TranscriptEntry, len(t.entries)-t.persisted)
	copy(batch, t.entries[t.persisted:])
	if err := t.sink.SaveEntries(ctx, batch); err != nil {
		return fmt.Errorf("failed to flush %d transcript entries: %w", len(batch), err)
	}
	t.persisted = len(t.entries)
	slog.Debug("Transcript.Flush: entries persisted", "count", len(batch))
	return nil
}
