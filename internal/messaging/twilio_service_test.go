package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/twiliowhatsapp"
)

func postForm(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/twilio/whatsapp", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestTwilioService_WebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), nil)

	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, postForm(url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("expected empty TwiML, got %q", rec.Body.String())
	}
	select {
	case msg := <-svc.Messages():
		if msg.Channel != models.ChannelTwilio || msg.From != "15551234567" || msg.Body != "hello" {
			t.Errorf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("expected inbound message")
	}
}

func TestTwilioService_WebhookHandlerRejects(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), nil)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"wrong method", httptest.NewRequest(http.MethodGet, "/twilio/whatsapp", nil), http.StatusMethodNotAllowed},
		{"missing body", postForm(url.Values{"From": {"whatsapp:+15551234567"}}), http.StatusBadRequest},
		{"missing from", postForm(url.Values{"Body": {"hi"}}), http.StatusBadRequest},
		{"invalid sender", postForm(url.Values{"From": {"abc"}, "Body": {"hi"}}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			svc.WebhookHandler(rec, tt.req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestTwilioService_WebhookSignatureRequired(t *testing.T) {
	validator := twiliowhatsapp.NewWebhookValidator("token", "")
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), validator)

	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, postForm(url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unsigned request, got %d", rec.Code)
	}
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock, nil)

	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "reply"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("unexpected sent messages: %+v", sent)
	}

	svc.Stop()
	rec := httptest.NewRecorder()
	svc.WebhookHandler(rec, postForm(url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after Stop, got %d", rec.Code)
	}
	if err := svc.SendMessage(context.Background(), "15551234567", "late"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	if err := svc.Deliver("15551234567", "late"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped from Deliver, got %v", err)
	}
}
