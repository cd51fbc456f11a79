package util

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestIDPropagatesIncomingHeader(t *testing.T) {
	const incoming = "req-incoming-123"
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromRequest(r); got != incoming {
			t.Fatalf("unexpected request id in context: got %q want %q", got, incoming)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", incoming)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != incoming {
		t.Fatalf("unexpected response request id: got %q want %q", got, incoming)
	}
}

func TestWithRequestIDReplacesUnsafeHeader(t *testing.T) {
	for _, incoming := range []string{"", "has space", strings.Repeat("x", 200)} {
		var seen string
		handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromRequest(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", incoming)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen == "" || seen == incoming {
			t.Fatalf("expected a generated id for %q, got %q", incoming, seen)
		}
		if got := rec.Header().Get("X-Request-Id"); got != seen {
			t.Fatalf("header %q does not match context %q", got, seen)
		}
	}
}

func TestWithRequestIDLoggerCarriesID(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "text")
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromContext(r.Context()).Info("hello")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithLogger(req.Context(), base))
	req.Header.Set("X-Request-Id", "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Fatalf("log line lacks request id: %q", buf.String())
	}
}
