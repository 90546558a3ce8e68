package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a webhook without replying inline; replies go out through the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service using the Twilio REST API for sending and an inbound
// webhook for receiving.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender
	validator *twiliowhatsapp.WebhookValidator
	inbox     *inbox
}

// NewTwilioService creates a TwilioService. A nil validator accepts unsigned webhooks.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, validator *twiliowhatsapp.WebhookValidator) *TwilioService {
	return &TwilioService{
		client:    client,
		validator: validator,
		inbox:     newInbox(),
	}
}

func (s *TwilioService) Name() string {
	return models.ChannelTwilio
}

// ValidateAndCanonicalizeRecipient reduces a phone number or "whatsapp:+..." address to its digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err == nil && canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, err
}

// Start is a no-op; messages arrive through WebhookHandler.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the Messages channel.
func (s *TwilioService) Stop() error {
	s.inbox.close()
	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.inbox.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Messages returns a channel of inbound messages.
func (s *TwilioService) Messages() <-chan models.Message {
	return s.inbox.ch
}

// Deliver queues an inbound message as if it had arrived through the webhook.
func (s *TwilioService) Deliver(from, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if !s.inbox.push(models.Message{Channel: models.ChannelTwilio, From: canonical, Body: body, Time: time.Now().Unix()}) {
		return ErrServiceStopped
	}
	return nil
}

// WebhookHandler handles inbound Twilio webhook requests (form fields From and Body).
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.validator != nil && !s.validator.Validate(r) {
		slog.Warn("Twilio webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.Deliver(from, body); err != nil {
		slog.Warn("Twilio webhook message not queued", "error", err, "from", from)
		if errors.Is(err, ErrServiceStopped) {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", from, "body_length", len(body))

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}
