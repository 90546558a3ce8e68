package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // set when client is a live connection, for event handling
	inbox    *inbox

	mu        sync.Mutex
	handlerID uint32
	handling  bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		inbox:  newInbox(),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

func (s *WhatsAppService) Name() string {
	return models.ChannelWhatsApp
}

// ValidateAndCanonicalizeRecipient reduces a phone number to its digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.handling {
		s.handlerID = s.waClient.GetClient().AddEventHandler(s.HandleEvent)
		s.handling = true
		slog.Debug("WhatsAppService event handler registered")
	}
	return nil
}

// Stop unregisters the event handler, disconnects, and closes the Messages channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	if s.handling && s.waClient != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
		s.waClient.Disconnect()
		s.handling = false
	}
	s.mu.Unlock()
	s.inbox.close()
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a text message to a phone number.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	slog.Debug("WhatsAppService message sent", "to", canonicalTo)
	return nil
}

// Messages returns a channel of inbound messages.
func (s *WhatsAppService) Messages() <-chan models.Message {
	return s.inbox.ch
}

// HandleEvent is the whatsmeow event handler. Only direct text messages from other users
// are forwarded.
func (s *WhatsAppService) HandleEvent(evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok || msg.Message == nil {
		return
	}
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}

	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" {
		slog.Debug("WhatsAppService ignoring non-text message", "from", msg.Info.Sender.String())
		return
	}

	inbound := models.Message{
		Channel: models.ChannelWhatsApp,
		From:    msg.Info.Sender.User,
		Body:    text,
		Time:    msg.Info.Timestamp.Unix(),
	}
	if s.inbox.push(inbound) {
		slog.Debug("WhatsAppService incoming message forwarded", "from", inbound.From, "body_length", len(text))
	}
}
