// Package telegram wraps the Telegram Bot API for UltimateBot's Telegram channel.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// DefaultPollTimeout is the long-poll timeout in seconds.
const DefaultPollTimeout = 60

// ErrTokenMissing is returned when no bot token is configured.
var ErrTokenMissing = errors.New("telegram bot token not set")

// TelegramSender sends text to a chat.
type TelegramSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token       string
	PollTimeout int
	Debug       bool
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token issued by BotFather.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *Opts) { o.PollTimeout = seconds }
}

// WithDebug enables the library's request logging.
func WithDebug() Option {
	return func(o *Opts) { o.Debug = true }
}

// Client wraps a tgbotapi.BotAPI.
type Client struct {
	bot         *tgbotapi.BotAPI
	pollTimeout int
}

// NewClient authenticates the bot token with Telegram.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{PollTimeout: DefaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, ErrTokenMissing
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	slog.Info("Telegram client authorized", "username", bot.Self.UserName)
	return &Client{bot: bot, pollTimeout: cfg.PollTimeout}, nil
}

// Name returns the bot's username.
func (c *Client) Name() string {
	return c.bot.Self.UserName
}

// Updates long-polls for text messages until ctx is cancelled or StopReceiving is called.
// The returned channel is closed when polling ends.
func (c *Client) Updates(ctx context.Context) <-chan models.Message {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	tgUpdates := c.bot.GetUpdatesChan(u)

	out := make(chan models.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-tgUpdates:
				if !ok {
					return
				}
				msg, ok := ToMessage(update)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// StopReceiving stops the long-poll loop.
func (c *Client) StopReceiving() {
	c.bot.StopReceivingUpdates()
}

// SendMessage sends body to the chat whose numeric ID is to.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, body)); err != nil {
		slog.Error("Telegram SendMessage failed", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	slog.Debug("Telegram message sent", "chat_id", chatID, "body_length", len(body))
	return nil
}

// ToMessage converts a text update into an inbound message keyed by chat ID.
// Updates without a text message are skipped.
func ToMessage(update tgbotapi.Update) (models.Message, bool) {
	m := update.Message
	if m == nil || m.Chat == nil || strings.TrimSpace(m.Text) == "" {
		return models.Message{}, false
	}
	return models.Message{
		Channel: models.ChannelTelegram,
		From:    strconv.FormatInt(m.Chat.ID, 10),
		Body:    m.Text,
		Time:    int64(m.Date),
	}, true
}
