package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/messaging"
	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/store"
	"github.com/ultimatebot/ultimatebot/internal/testutil"
	"github.com/ultimatebot/ultimatebot/internal/twiliowhatsapp"
)

var testAnswers = map[string]string{
	"capital of France": "Paris is the capital and largest city of France.",
}

func newTestServer(opts ...Option) *Server {
	return NewServer(testutil.NewTestBot(testAnswers), opts...)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeChatResponse(t *testing.T, rr *httptest.ResponseRecorder) models.ChatResponse {
	t.Helper()
	var resp models.ChatResponse
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	return resp
}

func TestChatHandler_Greeting(t *testing.T) {
	server := newTestServer()

	rr := serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: "Hello there"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "greeting")
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	resp := decodeChatResponse(t, rr)
	candidates := append(chatbot.DefaultPersona().Responses.All(), chatbot.TimeOfDayGreeting(testutil.FixedTime))
	if !slices.Contains(candidates, resp.Response) {
		t.Errorf("greeting reply %q not in candidate set", resp.Response)
	}
	if resp.Timestamp != "2024-03-01 09:30:00" {
		t.Errorf("unexpected timestamp %q", resp.Timestamp)
	}
	testutil.AssertEntryCount(t, server.bot.Transcript(), 1, "after greeting")
}

func TestChatHandler_Query(t *testing.T) {
	server := newTestServer()

	rr := serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: "  capital of France  "}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "known query")
	if got := decodeChatResponse(t, rr).Response; got != testAnswers["capital of France"] {
		t.Errorf("unexpected answer %q", got)
	}

	rr = serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: "capital of Atlantis"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "unknown query")
	if got := decodeChatResponse(t, rr).Response; got != chatbot.LookupFallback {
		t.Errorf("expected lookup fallback, got %q", got)
	}

	entries := server.bot.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Input != "capital of France" || entries[0].Channel != models.ChannelWeb {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Failure != models.FailureLookup {
		t.Errorf("expected lookup failure recorded, got %q", entries[1].Failure)
	}
}

func TestChatHandler_EmptyMessage(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"empty string", `{"message":""}`},
		{"whitespace only", `{"message":"   \t\n"}`},
		{"missing field", `{}`},
		{"empty body", ``},
		{"null message", `{"message":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer()
			rr := serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", tt.body))
			testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, tt.name)
			testutil.AssertJSONError(t, rr, "No message provided")
			testutil.AssertEntryCount(t, server.bot.Transcript(), 0, tt.name)
		})
	}
}

func TestChatHandler_BadRequests(t *testing.T) {
	server := newTestServer()

	rr := serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", `{"message":`))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid JSON")
	testutil.AssertJSONError(t, rr, "Invalid JSON format")

	long := strings.Repeat("a", models.MaxMessageLength+1)
	rr = serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: long}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "too long")
	testutil.AssertJSONError(t, rr, models.ErrMessageTooLong.Error())

	rr = serve(server, testutil.CreateHTTPRequest(t, http.MethodGet, "/chat", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET /chat")
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}

	testutil.AssertEntryCount(t, server.bot.Transcript(), 0, "after rejected requests")
}

func TestChatHandler_InternalFailureStillAnswers(t *testing.T) {
	panicky := knowledge.LookupFunc(func(ctx context.Context, query string) (string, error) {
		panic("lookup exploded")
	})
	server := NewServer(testutil.NewTestBot(nil, chatbot.WithLookup(panicky)))

	rr := serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: "capital of France"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "panicking lookup")
	if got := decodeChatResponse(t, rr).Response; got != chatbot.InternalFallback {
		t.Errorf("expected internal fallback, got %q", got)
	}
	testutil.AssertEntryCount(t, server.bot.Transcript(), 1, "internal failure recorded")
}

func TestIndexHandler(t *testing.T) {
	server := newTestServer()

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "index")
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Errorf("expected HTML, got %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), `fetch("/chat"`) {
		t.Error("expected chat page to post to /chat")
	}

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/missing", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown path")

	rr = serve(server, httptest.NewRequest(http.MethodPost, "/", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "POST /")
}

func TestHistoryHandler(t *testing.T) {
	server := newTestServer(WithHistoryLimit(2))
	for _, msg := range []string{"hello", "capital of France", "capital of Atlantis"} {
		serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: msg}))
	}

	var resp historyResponse
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/history", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "history default limit")
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	if resp.Source != "memory" || resp.Count != 2 || resp.Entries[0].Input != "capital of France" {
		t.Errorf("unexpected history %+v", resp)
	}

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/history?limit=0", nil))
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	if resp.Count != 3 {
		t.Errorf("expected all 3 entries with limit=0, got %d", resp.Count)
	}

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/history?limit=abc", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad limit")

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/history?source=store", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "no store")

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/history?source=disk", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "bad source")

	rr = serve(server, httptest.NewRequest(http.MethodPost, "/history", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "POST /history")
}

func TestHistoryHandler_Store(t *testing.T) {
	st := store.NewInMemoryStore()
	testutil.SeedStore(t, st, testutil.SampleEntries(5))
	server := newTestServer(WithStore(st))

	var resp historyResponse
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/history?source=store&limit=3", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "store history")
	testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	if resp.Source != "store" || resp.Count != 3 || resp.Entries[2].ID != "entry-004" {
		t.Errorf("unexpected store history %+v", resp)
	}
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer()
	serve(server, testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", models.ChatRequest{Message: "hello"}))

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	if body["transcript_entries"] != float64(1) {
		t.Errorf("expected 1 transcript entry, got %v", body["transcript_entries"])
	}
}

func TestTwilioWebhookMounted(t *testing.T) {
	twilio := messaging.NewTwilioService(twiliowhatsapp.NewMockClient(), nil)
	server := newTestServer(WithTwilioService(twilio))

	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hello"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := serve(server, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "twilio webhook")
	select {
	case msg := <-twilio.Messages():
		if msg.From != "15551234567" {
			t.Errorf("unexpected sender %q", msg.From)
		}
	default:
		t.Error("expected webhook message queued")
	}

	rr = serve(newTestServer(), httptest.NewRequest(http.MethodPost, "/twilio/whatsapp", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "webhook not mounted")
}
