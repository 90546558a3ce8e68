// Package models defines the core data structures for UltimateBot.
//
// It includes the HTTP request/response bodies, transcript entries, and inbound channel
// messages, which are shared across modules.
package models

import (
	"errors"
	"strings"
)

// TimestampLayout is the layout used for every user-visible timestamp (YYYY-MM-DD HH:MM:SS).
const TimestampLayout = "2006-01-02 15:04:05"

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for an incoming chat message
	MaxMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage   = errors.New("no message provided")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// Intent is the outcome of classifying a message.
type Intent string

const (
	// IntentGreeting marks a social opener that is answered from the greeting pool.
	IntentGreeting Intent = "greeting"
	// IntentQuery marks an informational request that is answered by the knowledge lookup.
	IntentQuery Intent = "query"
)

// FailureKind records which failure, if any, shaped a reply.
type FailureKind string

const (
	// FailureNone means the reply was produced normally.
	FailureNone FailureKind = "none"
	// FailureLookup means the knowledge lookup could not answer and the lookup fallback was used.
	FailureLookup FailureKind = "lookup"
	// FailureInternal means an unexpected failure occurred and the internal fallback was used.
	FailureInternal FailureKind = "internal"
)

// Channel names used in transcript entries and inbound messages.
const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
	ChannelTwilio   = "twilio"
	ChannelTelegram = "telegram"
)

// ChatRequest is the body accepted by POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// Validate trims the message in place and checks it is usable.
func (r *ChatRequest) Validate() error {
	r.Message = strings.TrimSpace(r.Message)
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatResponse is the body returned by POST /chat on success.
type ChatResponse struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the body returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error creates an error response with the given message.
func Error(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

// Sentiment is a coarse polarity reading of a message.
type Sentiment struct {
	Label string  `json:"label"` // positive, negative or neutral
	Score float64 `json:"score"` // compound score in [-1, 1]
}

// Entity is a named entity found in a message.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"` // PERSON, LOCATION, ORGANIZATION, MISC, ...
}

// Analysis bundles the enrichment recorded on query turns.
type Analysis struct {
	Sentiment Sentiment `json:"sentiment"`
	Entities  []Entity  `json:"entities"`
}

// TranscriptEntry is one message/response pair in the append-only conversation log.
type TranscriptEntry struct {
	ID        string      `json:"id"`
	Input     string      `json:"user_input"`
	Response  string      `json:"response"`
	Timestamp string      `json:"timestamp"`
	Intent    Intent      `json:"intent,omitempty"`
	Channel   string      `json:"channel,omitempty"`
	Failure   FailureKind `json:"failure,omitempty"`
	Sentiment *Sentiment  `json:"sentiment,omitempty"`
	Entities  []Entity    `json:"entities,omitempty"`
}

// Message is an inbound text received on a messaging channel.
type Message struct {
	Channel string `json:"channel"`
	From    string `json:"from"` // canonical sender identifier (phone digits or chat ID)
	Body    string `json:"body"`
	Time    int64  `json:"time"` // unix seconds
}
