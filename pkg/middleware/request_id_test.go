package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_KeepsIncomingID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesOversizedID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec := httptest.NewRecorder()

	RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRequestLogger_IncludesRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := RequestID(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set(RequestIDHeader, "req-456")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterField(zap.String("request_id", "req-456")).All()
	assert.Len(t, entries, 1)
}

func TestRequestLogger_PreservesFlusher(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		assert.True(t, ok)
		if ok {
			f.Flush()
		}
	}))

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, rec.Flushed)
}
