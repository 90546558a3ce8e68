package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ultimatebot/ultimatebot/internal/chatbot"
	"github.com/ultimatebot/ultimatebot/internal/models"
)

// User-facing error messages.
const (
	msgNoMessage     = "No message provided"
	msgInvalidJSON   = "Invalid JSON format"
	msgInternalError = "Internal server error"
)

// maxChatBodyBytes caps the POST /chat request body.
const maxChatBodyBytes = 64 << 10

//go:embed static/index.html
var indexHTML []byte

// historyResponse is the body returned by GET /history.
type historyResponse struct {
	Source  string                   `json:"source"`
	Count   int                      `json:"count"`
	Entries []models.TranscriptEntry `json:"entries"`
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeMethodNotAllowed(w, "GET, HEAD")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(indexHTML); err != nil {
		slog.Error("Server.indexHandler: failed to write page", "error", err)
	}
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			slog.Warn("Server.chatHandler: empty request body")
			writeJSONResponse(w, http.StatusBadRequest, models.Error(msgNoMessage))
			return
		}
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msgInvalidJSON))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		if errors.Is(err, models.ErrEmptyMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(msgNoMessage))
			return
		}
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	reply, err := s.bot.Chat(r.Context(), models.ChannelWeb, req.Message)
	if errors.Is(err, chatbot.ErrEmptyMessage) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msgNoMessage))
		return
	}
	if err != nil {
		slog.Error("Server.chatHandler: chat failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(msgInternalError))
		return
	}

	slog.Info("Server.chatHandler: reply sent", "id", reply.ID, "intent", reply.Intent, "failure", reply.Failure)
	writeJSONResponse(w, http.StatusOK, models.ChatResponse{Response: reply.Text, Timestamp: reply.Timestamp})
}

// historyHandler returns recent transcript entries, oldest first. The limit query parameter
// overrides the configured default; source=store reads from the persistent store instead
// of the in-memory transcript.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = n
	}

	source := r.URL.Query().Get("source")
	var entries []models.TranscriptEntry
	switch source {
	case "", "memory":
		source = "memory"
		entries = s.bot.Transcript().Entries()
		if limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
	case "store":
		if s.store == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("No persistent store configured"))
			return
		}
		var err error
		entries, err = s.store.ListEntries(r.Context(), limit)
		if err != nil {
			slog.Error("Server.historyHandler: failed to list entries", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error(msgInternalError))
			return
		}
	default:
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid source parameter"))
		return
	}

	if entries == nil {
		entries = []models.TranscriptEntry{}
	}
	writeJSONResponse(w, http.StatusOK, historyResponse{Source: source, Count: len(entries), Entries: entries})
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	transcript := s.bot.Transcript()
	healthData := map[string]interface{}{
		"status":             "healthy",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":     int64(time.Since(s.startedAt).Seconds()),
		"transcript_entries": transcript.Len(),
		"pending_entries":    transcript.Pending(),
		"persistent_store":   s.store != nil,
	}
	if s.router != nil {
		names := make([]string, 0, len(s.router.Services()))
		for _, svc := range s.router.Services() {
			names = append(names, svc.Name())
		}
		healthData["channels"] = names
	}

	writeJSONResponse(w, http.StatusOK, healthData)
}
