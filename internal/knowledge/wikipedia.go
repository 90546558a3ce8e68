package knowledge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Wikipedia client defaults
const (
	// SourceWikipedia names the encyclopedia in LookupErrors.
	SourceWikipedia = "wikipedia"
	// DefaultWikipediaURL is the base URL of the English Wikipedia.
	DefaultWikipediaURL = "https://en.wikipedia.org"
	// DefaultSummarySentences is how many sentences of the page summary are returned.
	DefaultSummarySentences = 3
	// DefaultHTTPTimeout bounds a single request when the caller sets no deadline.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultUserAgent identifies the bot to the Wikimedia APIs, which require a UA.
	DefaultUserAgent = "UltimateBot/1.0 (+https://github.com/ultimatebot/ultimatebot)"
	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// WikipediaOpts holds configuration for the Wikipedia client.
type WikipediaOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Sentences  int
	UserAgent  string
}

// WikipediaOption defines a configuration option for the Wikipedia client.
type WikipediaOption func(*WikipediaOpts)

// WithBaseURL points the client at another MediaWiki installation (or a test server).
func WithBaseURL(baseURL string) WikipediaOption {
	return func(o *WikipediaOpts) { o.BaseURL = baseURL }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) WikipediaOption {
	return func(o *WikipediaOpts) { o.HTTPClient = c }
}

// WithSentences sets how many summary sentences are returned.
func WithSentences(n int) WikipediaOption {
	return func(o *WikipediaOpts) { o.Sentences = n }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) WikipediaOption {
	return func(o *WikipediaOpts) { o.UserAgent = ua }
}

// Wikipedia looks up page summaries: a full-text search resolves the query to a page title,
// then the REST summary endpoint returns the lead section.
type Wikipedia struct {
	baseURL   string
	client    *http.Client
	sentences int
	userAgent string
}

// NewWikipedia creates a Wikipedia client, applying any provided options.
func NewWikipedia(opts ...WikipediaOption) *Wikipedia {
	cfg := WikipediaOpts{
		BaseURL:   DefaultWikipediaURL,
		Sentences: DefaultSummarySentences,
		UserAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if cfg.Sentences <= 0 {
		cfg.Sentences = DefaultSummarySentences
	}
	slog.Debug("NewWikipedia: client configured", "base_url", cfg.BaseURL, "sentences", cfg.Sentences)
	return &Wikipedia{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    cfg.HTTPClient,
		sentences: cfg.Sentences,
		userAgent: cfg.UserAgent,
	}
}

// Lookup returns the first sentences of the best-matching page summary.
func (w *Wikipedia) Lookup(ctx context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", NewLookupError(KindMalformed, SourceWikipedia, query, ErrEmptyQuery)
	}

	title, err := w.search(ctx, q)
	if err != nil {
		return "", err
	}
	extract, err := w.summary(ctx, q, title)
	if err != nil {
		return "", err
	}
	slog.Debug("Wikipedia.Lookup: summary found", "query", q, "title", title, "length", len(extract))
	return FirstSentences(extract, w.sentences), nil
}

func (w *Wikipedia) search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", "1")
	params.Set("format", "json")
	params.Set("formatversion", "2")

	body, status, err := w.get(ctx, w.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return "", NewLookupError(KindUnavailable, SourceWikipedia, query, err)
	}
	if status != http.StatusOK {
		return "", NewLookupError(KindUnavailable, SourceWikipedia, query, fmt.Errorf("search returned HTTP %d", status))
	}
	if !gjson.ValidBytes(body) {
		return "", NewLookupError(KindMalformed, SourceWikipedia, query, fmt.Errorf("search returned invalid JSON"))
	}
	if apiErr := gjson.GetBytes(body, "error.info"); apiErr.Exists() {
		return "", NewLookupError(KindMalformed, SourceWikipedia, query, fmt.Errorf("search rejected: %s", apiErr.String()))
	}
	title := gjson.GetBytes(body, "query.search.0.title").String()
	if title == "" {
		return "", NewLookupError(KindNotFound, SourceWikipedia, query, ErrNoAnswer)
	}
	return title, nil
}

func (w *Wikipedia) summary(ctx context.Context, query, title string) (string, error) {
	endpoint := w.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	body, status, err := w.get(ctx, endpoint)
	if err != nil {
		return "", NewLookupError(KindUnavailable, SourceWikipedia, query, err)
	}
	switch {
	case status == http.StatusNotFound:
		return "", NewLookupError(KindNotFound, SourceWikipedia, query, fmt.Errorf("page %q not found", title))
	case status != http.StatusOK:
		return "", NewLookupError(KindUnavailable, SourceWikipedia, query, fmt.Errorf("summary returned HTTP %d", status))
	case !gjson.ValidBytes(body):
		return "", NewLookupError(KindMalformed, SourceWikipedia, query, fmt.Errorf("summary returned invalid JSON"))
	}

	result := gjson.ParseBytes(body)
	if result.Get("type").String() == "disambiguation" {
		return "", NewLookupError(KindMalformed, SourceWikipedia, query, ErrAmbiguousQuery)
	}
	extract := strings.TrimSpace(result.Get("extract").String())
	if extract == "" {
		return "", NewLookupError(KindNotFound, SourceWikipedia, query, ErrNoAnswer)
	}
	return extract, nil
}

func (w *Wikipedia) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// FirstSentences returns the first n sentences of text. A sentence ends at '.', '!' or '?'
// followed by whitespace or the end of the text.
func FirstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return text
	}
	count := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				count++
				if count == n {
					return text[:i+1]
				}
			}
		}
	}
	return text
}
