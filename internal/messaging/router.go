package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/models"
)

// DefaultWorkersPerService bounds how many messages of one service are answered at once.
const DefaultWorkersPerService = 4

// Responder answers one message. *chatbot.Bot satisfies it.
type Responder interface {
	Chat(ctx context.Context, channel, text string) (chatbot.Reply, error)
}

// ChatRouter feeds inbound messages from every service to the bot and sends the replies back
// on the same service.
type ChatRouter struct {
	bot      Responder
	services []Service
	workers  int
}

// NewChatRouter creates a router over the given services. Nil services are ignored.
func NewChatRouter(bot Responder, services ...Service) *ChatRouter {
	r := &ChatRouter{bot: bot, workers: DefaultWorkersPerService}
	for _, s := range services {
		if s != nil {
			r.services = append(r.services, s)
		}
	}
	return r
}

// Services returns the routed services.
func (r *ChatRouter) Services() []Service {
	return r.services
}

// ProcessMessage answers msg and sends the reply to its sender. Empty messages are ignored.
func (r *ChatRouter) ProcessMessage(ctx context.Context, svc Service, msg models.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("ChatRouter.ProcessMessage: recovered from panic", "service", svc.Name(), "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while processing message: %v", rec)
		}
	}()

	from, err := svc.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Error("ChatRouter.ProcessMessage: invalid sender", "service", svc.Name(), "error", err, "from", msg.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	reply, err := r.bot.Chat(ctx, svc.Name(), msg.Body)
	if errors.Is(err, chatbot.ErrEmptyMessage) {
		slog.Debug("ChatRouter.ProcessMessage: ignoring empty message", "service", svc.Name(), "from", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bot failed to answer: %w", err)
	}

	if err := svc.SendMessage(ctx, from, reply.Text); err != nil {
		slog.Error("ChatRouter.ProcessMessage: failed to send reply", "service", svc.Name(), "error", err, "to", from)
		return fmt.Errorf("failed to send reply: %w", err)
	}
	slog.Info("ChatRouter.ProcessMessage: reply sent", "service", svc.Name(), "to", from, "intent", reply.Intent, "failure", reply.Failure)
	return nil
}

// Run starts every service and routes its messages until ctx is cancelled or every
// Messages channel is closed. Services are stopped before Run returns.
func (r *ChatRouter) Run(ctx context.Context) error {
	if len(r.services) == 0 {
		slog.Debug("ChatRouter.Run: no services configured")
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range r.services {
		g.Go(func() error {
			return r.serve(gctx, svc)
		})
	}
	return g.Wait()
}

func (r *ChatRouter) serve(ctx context.Context, svc Service) error {
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s service: %w", svc.Name(), err)
	}
	slog.Info("ChatRouter.serve: service started", "service", svc.Name())

	var workers errgroup.Group
	workers.SetLimit(r.workers)
	defer func() {
		workers.Wait()
		if err := svc.Stop(); err != nil {
			slog.Error("ChatRouter.serve: failed to stop service", "service", svc.Name(), "error", err)
		}
		slog.Info("ChatRouter.serve: service stopped", "service", svc.Name())
	}()

	messages := svc.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			workers.Go(func() error {
				if err := r.ProcessMessage(ctx, svc, msg); err != nil {
					slog.Warn("ChatRouter.serve: message not answered", "service", svc.Name(), "error", err)
				}
				return nil
			})
		}
	}
}
