package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func preflight(t *testing.T, h http.Handler, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodOptions, "/api/stats", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := CORS([]string{"https://wavy.example"})(ok)

	if got := preflight(t, h, "https://wavy.example").Header().Get("Access-Control-Allow-Origin"); got != "https://wavy.example" {
		t.Fatalf("expected origin to be allowed, got %q", got)
	}
	if got := preflight(t, h, "https://evil.example").Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected origin to be refused, got %q", got)
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := CORS([]string{"*"})(ok)

	if got := preflight(t, h, "http://localhost:5173").Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
}
