package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/util"
)

// DefaultLookupTimeout bounds a single lookup call.
const DefaultLookupTimeout = 10 * time.Second

// Outcome is what the selector produced for one message. Err keeps the original cause
// for logging; Text is always safe to show to the user.
type Outcome struct {
	Text    string
	Failure models.FailureKind
	Err     error
}

// Selector turns a classified message into reply text.
type Selector struct {
	pool    []string
	lookup  knowledge.Lookup
	rng     util.RandomSource
	timeout time.Duration
}

// NewSelector creates a selector over the given greeting pool and lookup collaborator.
// A nil lookup answers every query with the lookup fallback. Blank replies are dropped.
func NewSelector(pool ResponsePool, lookup knowledge.Lookup, rng util.RandomSource, timeout time.Duration) *Selector {
	if rng == nil {
		rng = util.DefaultRandomSource()
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Selector{
		pool:    cleanReplies(pool.All()),
		lookup:  lookup,
		rng:     rng,
		timeout: timeout,
	}
}

// TimeOfDayGreeting returns the greeting for now's hour:
// [5,12) morning, [12,17) afternoon, [17,22) evening, otherwise the late-hour greeting.
func TimeOfDayGreeting(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return MorningGreeting
	case h >= 12 && h < 17:
		return AfternoonGreeting
	case h >= 17 && h < 22:
		return EveningGreeting
	default:
		return LateHourGreeting
	}
}

// Candidates returns the greeting pool plus the time-of-day greeting for now.
func (s *Selector) Candidates(now time.Time) []string {
	out := make([]string, 0, len(s.pool)+1)
	out = append(out, s.pool...)
	return append(out, TimeOfDayGreeting(now))
}

// Select produces the reply for text. It never panics and never returns an empty Text.
func (s *Selector) Select(ctx context.Context, text string, intent models.Intent, now time.Time) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Selector.Select: recovered from panic", "panic", r, "stack", string(debug.Stack()))
			out = Outcome{Text: InternalFallback, Failure: models.FailureInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if intent == models.IntentGreeting {
		return s.greet(now)
	}
	return s.answer(ctx, text)
}

func (s *Selector) greet(now time.Time) Outcome {
	reply, ok := util.Choose(s.rng, s.Candidates(now))
	if !ok {
		return Outcome{Text: TimeOfDayGreeting(now), Failure: models.FailureNone}
	}
	return Outcome{Text: reply, Failure: models.FailureNone}
}

func (s *Selector) answer(ctx context.Context, text string) Outcome {
	if s.lookup == nil {
		return Outcome{
			Text:    LookupFallback,
			Failure: models.FailureLookup,
			Err:     knowledge.NewLookupError(knowledge.KindNotFound, "none", text, knowledge.ErrNoAnswer),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.lookup.Lookup(ctx, text)
	switch {
	case err == nil && summary != "":
		return Outcome{Text: summary, Failure: models.FailureNone}
	case err == nil:
		return Outcome{
			Text:    LookupFallback,
			Failure: models.FailureLookup,
			Err:     knowledge.NewLookupError(knowledge.KindNotFound, "lookup", text, knowledge.ErrNoAnswer),
		}
	case isLookupFailure(err):
		kind, _ := knowledge.KindOf(err)
		slog.Debug("Selector.answer: lookup failed", "kind", kind, "error", err)
		return Outcome{Text: LookupFallback, Failure: models.FailureLookup, Err: err}
	default:
		slog.Error("Selector.answer: unexpected lookup error", "error", err)
		return Outcome{Text: InternalFallback, Failure: models.FailureInternal, Err: err}
	}
}

// isLookupFailure reports whether err is an expected "could not answer" failure.
func isLookupFailure(err error) bool {
	if _, ok := knowledge.KindOf(err); ok {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
