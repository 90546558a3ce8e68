// Package api provides the HTTP server for UltimateBot.
//
// It serves the chat page, the POST /chat endpoint, transcript history, a health check,
// and the Twilio inbound webhook, and runs the messaging channels alongside the server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/messaging"
	"github.com/ultimatebot/ultimatebot/internal/scheduler"
	"github.com/ultimatebot/ultimatebot/internal/store"
)

// Default server configuration
const (
	// DefaultAddr is the listen address used when none is configured
	DefaultAddr = ":8080"
	// DefaultHistoryLimit is how many entries GET /history returns without a limit parameter
	DefaultHistoryLimit = 100
	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server and the final flush
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultAllowedOrigin is the CORS origin sent on every response
	DefaultAllowedOrigin = "*"
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	HistoryLimit    int
	AllowedOrigin   string
	ShutdownTimeout time.Duration
	Store           store.Store
	Twilio          *messaging.TwilioService
	Router          *messaging.ChatRouter
	Scheduler       *scheduler.Scheduler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithHistoryLimit sets the default number of entries returned by GET /history. 0 returns all.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) { o.HistoryLimit = n }
}

// WithAllowedOrigin sets the Access-Control-Allow-Origin value.
func WithAllowedOrigin(origin string) Option {
	return func(o *Opts) { o.AllowedOrigin = origin }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithStore sets the persistent store. It backs GET /history?source=store and is closed on shutdown.
func WithStore(st store.Store) Option {
	return func(o *Opts) { o.Store = st }
}

// WithTwilioService mounts the Twilio inbound webhook at /twilio/whatsapp.
func WithTwilioService(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// WithRouter runs the given channel router for the lifetime of the server.
func WithRouter(r *messaging.ChatRouter) Option {
	return func(o *Opts) { o.Router = r }
}

// WithScheduler hands the server a running scheduler to stop before the final flush.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(o *Opts) { o.Scheduler = sched }
}

// Server holds all dependencies for the API handlers.
type Server struct {
	bot             *chatbot.Bot
	store           store.Store
	twilio          *messaging.TwilioService
	router          *messaging.ChatRouter
	scheduler       *scheduler.Scheduler
	addr            string
	historyLimit    int
	allowedOrigin   string
	shutdownTimeout time.Duration
	startedAt       time.Time
}

// NewServer creates a Server around bot, applying any provided options.
func NewServer(bot *chatbot.Bot, opts ...Option) *Server {
	cfg := Opts{
		Addr:            DefaultAddr,
		HistoryLimit:    DefaultHistoryLimit,
		AllowedOrigin:   DefaultAllowedOrigin,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = DefaultAllowedOrigin
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if bot == nil {
		bot = chatbot.New()
	}

	return &Server{
		bot:             bot,
		store:           cfg.Store,
		twilio:          cfg.Twilio,
		router:          cfg.Router,
		scheduler:       cfg.Scheduler,
		addr:            cfg.Addr,
		historyLimit:    cfg.HistoryLimit,
		allowedOrigin:   cfg.AllowedOrigin,
		shutdownTimeout: cfg.ShutdownTimeout,
		startedAt:       time.Now(),
	}
}

// Handler returns the server's routes wrapped in the recover and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.twilio != nil {
		mux.HandleFunc("/twilio/whatsapp", s.twilio.WebhookHandler)
		slog.Debug("Server.Handler: Twilio webhook mounted", "path", "/twilio/whatsapp")
	}
	return corsMiddleware(s.allowedOrigin, recoverMiddleware(mux))
}

// Run serves HTTP and runs the channel router until ctx is cancelled or either fails.
// On the way out it shuts the server down, flushes the transcript, and closes the store.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Run: HTTP server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Run: shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})
	if s.router != nil {
		g.Go(func() error {
			return s.router.Run(gctx)
		})
	}

	err := g.Wait()
	if closeErr := s.close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

// close stops scheduled jobs, flushes pending transcript entries, and closes the store.
func (s *Server) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if s.scheduler != nil {
		s.scheduler.Stop(ctx)
	}

	var errs []error
	if err := s.bot.Transcript().Flush(ctx); err != nil {
		slog.Error("Server.close: failed to flush transcript", "error", err)
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("Server.close: failed to close store", "error", err)
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	slog.Info("Server.close: shutdown complete")
	return errors.Join(errs...)
}
