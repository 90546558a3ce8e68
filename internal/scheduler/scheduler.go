// Package scheduler runs periodic maintenance jobs for UltimateBot, such as flushing the
// transcript to its store.
//
// Jobs are scheduled with cron expressions: standard 5-field specs or descriptors like
// "@every 30s" and "@hourly".
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultFlushTimeout bounds a single scheduled flush.
const DefaultFlushTimeout = 10 * time.Second

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "expr", expr, "id", id)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		slog.Debug("Scheduler.Stop: all jobs finished")
	case <-ctx.Done():
		slog.Warn("Scheduler.Stop: gave up waiting for running jobs", "error", ctx.Err())
	}
}

// Flusher persists buffered state. *chatbot.Transcript satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushJob returns a job that flushes f, bounded by timeout. Failures are logged; the next
// run retries whatever is still pending.
func FlushJob(f Flusher, timeout time.Duration) func() {
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := f.Flush(ctx); err != nil {
			slog.Error("scheduler.FlushJob: scheduled flush failed", "error", err)
		}
	}
}
