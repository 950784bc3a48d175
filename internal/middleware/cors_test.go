package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/borichat/internal/identity"
)

func corsRequest(t *testing.T, h http.Handler, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/widget", nil)
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", identity.TabHeaderName)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := CORS([]string{"https://boricua.example"})(next)

	w := corsRequest(t, h, http.MethodGet, "https://boricua.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://boricua.example" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials for explicit origin, got %q", got)
	}
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected request to reach handler, got %d", w.Code)
	}

	w = corsRequest(t, h, http.MethodGet, "https://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header for unknown origin, got %q", got)
	}

	w = corsRequest(t, h, http.MethodOptions, "https://boricua.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://boricua.example" {
		t.Fatalf("expected preflight to allow origin, got %q", got)
	}
	if w.Code == http.StatusNoContent {
		t.Fatal("preflight should not reach the handler")
	}
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	h := CORS([]string{"*"})(next)

	w := corsRequest(t, h, http.MethodGet, "https://anywhere.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatal("expected wildcard to allow any origin")
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials with wildcard, got %q", got)
	}
}
