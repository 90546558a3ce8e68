// Package messaging connects UltimateBot to chat channels (WhatsApp, Twilio, Telegram).
//
// Each channel is a Service that delivers inbound messages on a channel and sends replies;
// ChatRouter feeds inbound messages to the bot and sends its replies back.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound message channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines how long an inbound message waits for buffer space
	DefaultChannelTimeout = 1 * time.Second
	// minPhoneDigits is the shortest accepted phone number
	minPhoneDigits = 6
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable chat channel.
type Service interface {
	// Name identifies the channel in transcript entries and logs.
	Name() string

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the Messages channel.
	Stop() error

	// Messages returns a channel of inbound messages.
	Messages() <-chan models.Message
}

// canonicalizePhone strips everything but digits and checks the length.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, minPhoneDigits)
	}
	return canonical, nil
}

// inbox is a buffered message channel that can be closed while producers are still running.
type inbox struct {
	mu      sync.RWMutex
	ch      chan models.Message
	stopped bool
}

func newInbox() *inbox {
	return &inbox{ch: make(chan models.Message, DefaultChannelBufferSize)}
}

// push delivers msg, waiting up to DefaultChannelTimeout for buffer space.
// It reports false if the inbox is closed or full.
func (b *inbox) push(msg models.Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn("inbox dropping message (service stopped)", "channel", msg.Channel, "from", msg.From)
		return false
	}
	select {
	case b.ch <- msg:
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("inbox channel blocked, dropping message", "channel", msg.Channel, "from", msg.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// close closes the channel once; later calls are no-ops.
func (b *inbox) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.ch)
	}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}
