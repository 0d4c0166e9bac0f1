package engine

import (
	"errors"
	"testing"
)

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		t.Errorf("MaxRetries should be positive, got %d", cfg.MaxRetries)
	}
	if cfg.InitialInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		t.Errorf("intervals out of order: %v .. %v", cfg.InitialInterval, cfg.MaxInterval)
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "rate limit", err: errors.New("rate limit exceeded"), expected: true},
		{name: "quota exceeded", err: errors.New("quota exceeded for project"), expected: true},
		{name: "429 status", err: errors.New("HTTP 429: Too Many Requests"), expected: true},
		{name: "500 server error", err: errors.New("HTTP 500 Internal Server Error"), expected: true},
		{name: "503 unavailable", err: errors.New("503 Service Unavailable"), expected: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), expected: true},
		{name: "timeout", err: errors.New("request timeout"), expected: true},
		{name: "case insensitive", err: errors.New("RATE LIMIT reached"), expected: true},
		{name: "invalid key", err: errors.New("invalid API key"), expected: false},
		{name: "400 bad request", err: errors.New("HTTP 400 Bad Request"), expected: false},
		{name: "401 unauthorized", err: errors.New("HTTP 401 Unauthorized"), expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.expected {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
