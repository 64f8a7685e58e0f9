package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/config"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(&config.Config{Version: "test-version", Env: "test"}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got '%s'", rec.Body.String())
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version: "1.2.3",
		Env:     "test",
	}
	handler := NewHealthHandler(cfg, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	handler.Ping(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Version != "1.2.3" {
		t.Errorf("expected version '1.2.3', got '%s'", response.Version)
	}
	if response.Service != "ekaya-chat-engine" {
		t.Errorf("expected service 'ekaya-chat-engine', got '%s'", response.Service)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment 'test', got '%s'", response.Environment)
	}
	if response.GoVersion == "" {
		t.Error("expected non-empty go_version")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name: "all healthy",
			checks: map[string]HealthCheck{
				"database":   func(context.Context) error { return nil },
				"datasource": func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "datasource": "ok"},
		},
		{
			name: "datasource down",
			checks: map[string]HealthCheck{
				"database":   func(context.Context) error { return nil },
				"datasource": func(context.Context) error { return errors.New("dial tcp: connection refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "datasource": "unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&config.Config{}, tt.checks, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/ready", nil)
			rec := httptest.NewRecorder()

			handler.Ready(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var response ReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(response.Checks) != len(tt.wantChecks) {
				t.Fatalf("expected %d checks, got %d", len(tt.wantChecks), len(response.Checks))
			}
			for name, want := range tt.wantChecks {
				if response.Checks[name] != want {
					t.Errorf("check %s: expected '%s', got '%s'", name, want, response.Checks[name])
				}
			}
		})
	}
}
