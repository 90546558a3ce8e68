package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("Hello World")}
	client := &Client{chat: mock, model: "test-model"}
	out, err := client.GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if string(mock.params.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.params.Model)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithBaseURL("http://localhost:1"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil || cli.model != "gpt-test" {
		t.Errorf("unexpected client: %+v", cli)
	}
}

func TestAnalyze(t *testing.T) {
	mock := &mockChatService{resp: completion(`{"sentiment": {"label": "Positive", "score": 0.8},
		"entities": [{"text": "Ada Lovelace", "type": "person"}, {"text": "  ", "type": "MISC"}]}`)}
	client := &Client{chat: mock, model: "test-model"}

	a, err := client.Analyze(context.Background(), "I love reading about Ada Lovelace")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Sentiment.Label != "positive" || a.Sentiment.Score != 0.8 {
		t.Errorf("unexpected sentiment: %+v", a.Sentiment)
	}
	if len(a.Entities) != 1 || a.Entities[0].Text != "Ada Lovelace" || a.Entities[0].Type != "PERSON" {
		t.Errorf("unexpected entities: %+v", a.Entities)
	}
}

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLabel string
		wantScore float64
		wantErr   bool
	}{
		{"fenced", "```json\n{\"sentiment\": {\"label\": \"negative\", \"score\": -0.4}, \"entities\": []}\n```", "negative", -0.4, false},
		{"unknown label uses score", `{"sentiment": {"label": "meh", "score": 0.01}, "entities": []}`, "neutral", 0.01, false},
		{"score clamped", `{"sentiment": {"label": "positive", "score": 3}, "entities": []}`, "positive", 1, false},
		{"not json", "I think it is positive", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAnalysis(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAnalysis) {
					t.Fatalf("expected ErrInvalidAnalysis, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Sentiment.Label != tt.wantLabel || a.Sentiment.Score != tt.wantScore {
				t.Errorf("got %+v, want label %s score %v", a.Sentiment, tt.wantLabel, tt.wantScore)
			}
		})
	}
}

func TestLabelForScore(t *testing.T) {
	cases := map[float64]string{0.05: "positive", 0.5: "positive", 0: "neutral", -0.04: "neutral", -0.05: "negative"}
	for score, want := range cases {
		if got := labelForScore(score); got != want {
			t.Errorf("labelForScore(%v) = %s, want %s", score, got, want)
		}
	}
}
