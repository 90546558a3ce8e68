package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ultimatebot/ultimatebot/internal/testutil"
)

func TestRecoverMiddleware(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat", nil))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "panicking handler")
	testutil.AssertJSONError(t, rr, "Internal server error")
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(WithAllowedOrigin("https://chat.example.com"))

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = serve(server, req)
	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "preflight")
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("expected allow-methods on preflight")
	}

	rr = serve(newTestServer(), testutil.CreateHTTPRequest(t, http.MethodPost, "/chat", `{}`))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin on error responses, got %q", got)
	}
}
