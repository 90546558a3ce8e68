// Package testutil provides common test utilities and helpers for UltimateBot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/knowledge"
	"github.com/ultimatebot/ultimatebot/internal/models"
	"github.com/ultimatebot/ultimatebot/internal/store"
	"github.com/ultimatebot/ultimatebot/internal/util"
)

// FixedTime is the clock used by NewTestBot: 2024-03-01 09:30:00 UTC, a morning hour.
var FixedTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// StaticLookup answers queries from a fixed map. Unknown queries fail with KindNotFound.
func StaticLookup(answers map[string]string) knowledge.Lookup {
	return knowledge.LookupFunc(func(ctx context.Context, query string) (string, error) {
		if answer, ok := answers[query]; ok {
			return answer, nil
		}
		return "", knowledge.NewLookupError(knowledge.KindNotFound, "static", query, knowledge.ErrNoAnswer)
	})
}

// NewTestBot creates a deterministic bot: seeded randomness, FixedTime clock, and a
// StaticLookup over answers. Extra options are applied last.
func NewTestBot(answers map[string]string, opts ...chatbot.Option) *chatbot.Bot {
	base := []chatbot.Option{
		chatbot.WithLookup(StaticLookup(answers)),
		chatbot.WithRandomSource(util.NewSeededRandomSource(42)),
		chatbot.WithClock(func() time.Time { return FixedTime }),
	}
	return chatbot.New(append(base, opts...)...)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONError decodes an error body and checks its message.
func AssertJSONError(t testing.TB, rr *httptest.ResponseRecorder, expectedMessage string) models.ErrorResponse {
	t.Helper()
	var response models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return response
	}
	if response.Error != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, response.Error)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
// A string body is sent verbatim; anything else is marshaled.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, b))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertEntryCount validates the number of entries held by the transcript.
func AssertEntryCount(t testing.TB, transcript *chatbot.Transcript, expected int, context string) {
	t.Helper()
	if got := transcript.Len(); got != expected {
		t.Errorf("%s: expected %d transcript entries, got %d", context, expected, got)
	}
}

// AssertStoredCount validates the number of entries persisted in the store.
func AssertStoredCount(t testing.TB, st store.Store, expected int, label string) {
	t.Helper()
	entries, err := st.ListEntries(context.Background(), 0)
	if err != nil {
		t.Fatalf("%s: failed to list entries: %v", label, err)
		return
	}
	if len(entries) != expected {
		t.Errorf("%s: expected %d stored entries, got %d", label, expected, len(entries))
	}
}

// SampleEntries returns n distinct transcript entries with increasing timestamps.
func SampleEntries(n int) []models.TranscriptEntry {
	entries := make([]models.TranscriptEntry, n)
	for i := range entries {
		entries[i] = models.TranscriptEntry{
			ID:        fmt.Sprintf("entry-%03d", i),
			Input:     "question",
			Response:  "answer",
			Timestamp: FixedTime.Add(time.Duration(i) * time.Second).Format(models.TimestampLayout),
			Intent:    models.IntentQuery,
			Channel:   models.ChannelWeb,
			Failure:   models.FailureNone,
		}
	}
	return entries
}

// SeedStore saves entries to the store and fails the test on error.
func SeedStore(t testing.TB, st store.Store, entries []models.TranscriptEntry) {
	t.Helper()
	if err := st.SaveEntries(context.Background(), entries); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t testing.TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
