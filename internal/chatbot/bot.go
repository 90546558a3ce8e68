package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/util"
)

// ErrEmptyMessage is returned by Chat when the message is blank after trimming.
var ErrEmptyMessage = models.ErrEmptyMessage

// Analyzer enriches query turns with sentiment and named entities.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (models.Analysis, error)
}

// Reply is the bot's answer to one message.
type Reply struct {
	ID        string
	Text      string
	Intent    models.Intent
	Timestamp string
	Failure   models.FailureKind
}

// Opts holds configuration for a Bot.
type Opts struct {
	Persona       Persona
	Lookup        knowledge.Lookup
	Random        util.RandomSource
	Clock         func() time.Time
	Transcript    *Transcript
	Analyzer      Analyzer
	LookupTimeout time.Duration
}

// Option defines a configuration option for a Bot.
type Option func(*Opts)

// WithPersona replaces the built-in greeting vocabulary.
func WithPersona(p Persona) Option {
	return func(o *Opts) { o.Persona = p }
}

// WithLookup sets the collaborator that answers queries.
func WithLookup(l knowledge.Lookup) Option {
	return func(o *Opts) { o.Lookup = l }
}

// WithRandomSource sets the source used to pick greeting replies.
func WithRandomSource(r util.RandomSource) Option {
	return func(o *Opts) { o.Random = r }
}

// WithClock sets the time source for the time-of-day greeting and entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// WithTranscript sets the transcript every turn is appended to.
func WithTranscript(t *Transcript) Option {
	return func(o *Opts) { o.Transcript = t }
}

// WithAnalyzer enables sentiment and entity enrichment of query turns.
func WithAnalyzer(a Analyzer) Option {
	return func(o *Opts) { o.Analyzer = a }
}

// WithLookupTimeout bounds each lookup call.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LookupTimeout = d }
}

// Bot answers messages and records every turn in its transcript.
type Bot struct {
	classifier *Classifier
	selector   *Selector
	transcript *Transcript
	analyzer   Analyzer
	clock      func() time.Time
}

// New creates a Bot, applying any provided options.
func New(opts ...Option) *Bot {
	cfg := Opts{
		Persona:       DefaultPersona(),
		Clock:         time.Now,
		LookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Transcript == nil {
		cfg.Transcript = NewTranscript()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	slog.Debug("chatbot.New: bot configured", "persona", cfg.Persona.Name, "lookup", cfg.Lookup != nil, "analyzer", cfg.Analyzer != nil, "lookup_timeout", cfg.LookupTimeout)
	return &Bot{
		classifier: NewClassifier(cfg.Persona.Patterns, cfg.Persona.Probes),
		selector:   NewSelector(cfg.Persona.Responses, cfg.Lookup, cfg.Random, cfg.LookupTimeout),
		transcript: cfg.Transcript,
		analyzer:   cfg.Analyzer,
		clock:      cfg.Clock,
	}
}

// Transcript returns the bot's transcript.
func (b *Bot) Transcript() *Transcript {
	return b.transcript
}

// Chat answers text received on channel. The only error is ErrEmptyMessage, in which case
// nothing is recorded. Every other outcome, including lookup and internal failures, is a
// Reply with user-facing text and exactly one transcript entry.
func (b *Bot) Chat(ctx context.Context, channel, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}

	now := b.clock()
	entry := models.TranscriptEntry{
		ID:      uuid.NewString(),
		Input:   text,
		Channel: channel,
	}

	intent, outcome := b.respond(ctx, text, now)
	entry.Intent = intent
	entry.Response = outcome.Text
	entry.Failure = outcome.Failure

	switch outcome.Failure {
	case models.FailureInternal:
		slog.Error("Bot.Chat: internal failure", "id", entry.ID, "channel", channel, "error", outcome.Err)
	case models.FailureLookup:
		slog.Info("Bot.Chat: lookup failed", "id", entry.ID, "channel", channel, "error", outcome.Err)
	}

	if intent == models.IntentQuery && b.analyzer != nil {
		b.enrich(ctx, &entry)
	}

	// Stamped when the turn completes, not when it arrived; the transcript orders by completion.
	entry.Timestamp = b.clock().Format(models.TimestampLayout)
	entry = b.transcript.Append(ctx, entry)
	slog.Debug("Bot.Chat: turn recorded", "id", entry.ID, "channel", channel, "intent", intent, "failure", outcome.Failure)

	return Reply{
		ID:        entry.ID,
		Text:      entry.Response,
		Intent:    intent,
		Timestamp: entry.Timestamp,
		Failure:   outcome.Failure,
	}, nil
}

// respond classifies and selects, converting a panic anywhere in between into the internal fallback.
func (b *Bot) respond(ctx context.Context, text string, now time.Time) (intent models.Intent, out Outcome) {
	intent = models.IntentQuery
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot.respond: recovered from panic", "panic", r, "stack", string(debug.Stack()))
			out = Outcome{Text: InternalFallback, Failure: models.FailureInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	intent = b.classifier.Classify(text)
	return intent, b.selector.Select(ctx, text, intent, now)
}

func (b *Bot) enrich(ctx context.Context, entry *models.TranscriptEntry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot.enrich: recovered from panic", "id", entry.ID, "panic", r)
		}
	}()
	analysis, err := b.analyzer.Analyze(ctx, entry.Input)
	if err != nil {
		slog.Warn("Bot.enrich: analysis failed", "id", entry.ID, "error", err)
		return
	}
	entry.Sentiment = &analysis.Sentiment
	entry.Entities = analysis.Entities
}
