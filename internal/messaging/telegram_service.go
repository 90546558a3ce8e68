package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// TelegramClient is the part of telegram.Client the service needs.
type TelegramClient interface {
	SendMessage(ctx context.Context, to string, body string) error
	Updates(ctx context.Context) <-chan models.Message
	StopReceiving()
}

// TelegramService implements Service on a long-polling Telegram bot.
type TelegramService struct {
	client TelegramClient
	inbox  *inbox

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegramService wraps a Telegram client.
func NewTelegramService(client TelegramClient) *TelegramService {
	return &TelegramService{client: client, inbox: newInbox()}
}

func (s *TelegramService) Name() string {
	return models.ChannelTelegram
}

// ValidateAndCanonicalizeRecipient checks the recipient is a numeric chat ID.
func (s *TelegramService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(recipient)
	id, err := strconv.ParseInt(r, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q", recipient)
	}
	return strconv.FormatInt(id, 10), nil
}

// Start begins long polling in the background.
func (s *TelegramService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	updates := s.client.Updates(pollCtx)

	go func() {
		defer close(s.done)
		for msg := range updates {
			s.inbox.push(msg)
		}
		slog.Debug("TelegramService polling stopped")
	}()
	slog.Debug("TelegramService polling started")
	return nil
}

// Stop ends polling, waits for the forwarder, and closes the Messages channel.
func (s *TelegramService) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.client.StopReceiving()
		<-done
	}
	s.inbox.close()
	return nil
}

// SendMessage sends a message to a chat.
func (s *TelegramService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	chatID, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, chatID, body)
}

// Messages returns a channel of inbound messages.
func (s *TelegramService) Messages() <-chan models.Message {
	return s.inbox.ch
}
