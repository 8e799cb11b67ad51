package trace

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
)

func newTestLogger(w io.Writer) *log.Logger {
	return log.New(log.Config{
		Level:     slog.LevelDebug,
		Component: "test",
		Handler:   slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestMiddleware_RequestIDAndRoute(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New()
	tm := NewMiddleware(func(*http.Request) string { return "192.0.2.1" }, newTestLogger(&buf), m)

	var seenID string
	mux := http.NewServeMux()
	mux.Handle("GET /api/students/{id}", Route(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})))
	h := tm.Middleware(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/students/abc", nil))

	if seenID == "" || !strings.HasPrefix(seenID, "req_") {
		t.Fatalf("request id = %q", seenID)
	}
	if rec.Header().Get(RequestIDHeader) != seenID {
		t.Errorf("header %q != context %q", rec.Header().Get(RequestIDHeader), seenID)
	}
	out := buf.String()
	if !strings.Contains(out, "HTTP request completed") || !strings.Contains(out, "level=WARN") {
		t.Errorf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, "/api/students/{id}") {
		t.Errorf("route missing from log: %s", out)
	}
	if tm.TotalRequests() != 1 {
		t.Errorf("TotalRequests = %d", tm.TotalRequests())
	}

	mrec := httptest.NewRecorder()
	m.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mrec.Body.String(), `route="GET /api/students/{id}"`) {
		t.Errorf("latency not recorded for matched route")
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	tm := NewMiddleware(nil, newTestLogger(io.Discard), nil)
	h := tm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestID(r); got != "abc-123" {
			t.Errorf("RequestID = %q", got)
		}
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)
}

func TestGetRequestID_Empty(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID() = %q", got)
	}
}
