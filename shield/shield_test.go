package shield

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	// WHAT: every response carries the configured security headers.
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audits", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing CSP")
	}
}

func TestTraceIDInjectsHeader(t *testing.T) {
	// WHAT: each request gets a request ID in the response headers.
	h := TraceID(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: an IP over its window budget gets 429; excluded paths and
	// other IPs stay unaffected.
	rl := NewRateLimiter(RateLimitConfig{MaxRequests: 2, WindowSeconds: 60}, "/healthz")
	h := rl.Middleware(okHandler())

	hit := func(ip, path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if hit("10.0.0.1", "/api/audits") != http.StatusOK || hit("10.0.0.1", "/api/audits") != http.StatusOK {
		t.Fatal("requests within budget rejected")
	}
	if got := hit("10.0.0.1", "/api/audits"); got != http.StatusTooManyRequests {
		t.Errorf("3rd request = %d, want 429", got)
	}
	if got := hit("10.0.0.1", "/healthz"); got != http.StatusOK {
		t.Errorf("excluded path limited: %d", got)
	}
	if got := hit("10.0.0.2", "/api/audits"); got != http.StatusOK {
		t.Errorf("other IP limited: %d", got)
	}
}

func TestMaxBody(t *testing.T) {
	// WHAT: bodies over the cap fail the handler's read.
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		if _, err := r.Body.Read(buf); err != nil {
			var maxErr *http.MaxBytesError
			if !errors.As(err, &maxErr) {
				t.Errorf("err = %v, want MaxBytesError", err)
			}
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/audits",
		strings.NewReader(`{"url":"https://shop.example/a-product-url-that-is-long"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("code = %d, want 413", rec.Code)
	}
}
