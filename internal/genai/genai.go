// Package genai provides message analysis backed by the OpenAI chat completions API.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// Default model settings
const (
	DefaultModel               = "gpt-4o-mini"
	DefaultTemperature         = 0.0
	DefaultMaxCompletionTokens = 300
)

// Error variables
var (
	ErrAPIKeyMissing     = errors.New("OpenAI API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrInvalidAnalysis   = errors.New("model returned an invalid analysis")
)

// analysisPrompt instructs the model to answer with a strict JSON document.
const analysisPrompt = `You analyze a single chat message.
Respond with JSON only, no prose and no code fences, in exactly this shape:
{"sentiment": {"label": "positive|negative|neutral", "score": <number between -1 and 1>},
 "entities": [{"text": "<surface text>", "type": "PERSON|LOCATION|ORGANIZATION|DATE|MISC"}]}
Use an empty entities array when there are none.`

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openAIChatService adapts the SDK client to chatService.
type openAIChatService struct {
	client openai.Client
}

func (s *openAIChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxCompletionTokens caps the length of the model's answer.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Debug("genai.NewClient: client configured", "model", cfg.Model, "base_url_set", cfg.BaseURL != "")
	return &Client{
		chat:                &openAIChatService{client: openai.NewClient(reqOpts...)},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
	}, nil
}

// GeneratePrompt returns the model's answer to a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxCompletionTokens)
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// Analyze returns the sentiment and named entities of text.
func (c *Client) Analyze(ctx context.Context, text string) (models.Analysis, error) {
	raw, err := c.GeneratePrompt(ctx, analysisPrompt, text)
	if err != nil {
		return models.Analysis{}, err
	}
	analysis, err := parseAnalysis(raw)
	if err != nil {
		slog.Warn("Client.Analyze: unusable model output", "error", err, "output", raw)
		return models.Analysis{}, err
	}
	slog.Debug("Client.Analyze: message analyzed", "sentiment", analysis.Sentiment.Label, "entities", len(analysis.Entities))
	return analysis, nil
}

// parseAnalysis decodes the model output, tolerating a surrounding code fence,
// and normalizes the label and score.
func parseAnalysis(raw string) (models.Analysis, error) {
	body := strings.TrimSpace(raw)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}

	var a models.Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return models.Analysis{}, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	a.Sentiment.Label = strings.ToLower(strings.TrimSpace(a.Sentiment.Label))
	switch a.Sentiment.Label {
	case "positive", "negative", "neutral":
	default:
		a.Sentiment.Label = labelForScore(a.Sentiment.Score)
	}
	a.Sentiment.Score = math.Max(-1, math.Min(1, a.Sentiment.Score))

	entities := a.Entities[:0]
	for _, e := range a.Entities {
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" {
			continue
		}
		e.Type = strings.ToUpper(strings.TrimSpace(e.Type))
		if e.Type == "" {
			e.Type = "MISC"
		}
		entities = append(entities, e)
	}
	a.Entities = entities
	return a, nil
}

// labelForScore uses the usual compound-score thresholds of ±0.05.
func labelForScore(score float64) string {
	switch {
	case score >= 0.05:
		return "positive"
	case score <= -0.05:
		return "negative"
	default:
		return "neutral"
	}
}
