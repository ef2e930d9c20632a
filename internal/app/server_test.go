package app

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"streamgate/internal/config"
	"streamgate/internal/coordinator"
)

func TestWriteTimeoutOutlastsStreamingDeadline(t *testing.T) {
	tests := []struct {
		name      string
		timeoutMs int
	}{
		{"default", config.DefaultTimeoutMs},
		{"above stream floor", 150000},
		{"five minutes", 300000},
		{"fifteen minutes", 900000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{TimeoutMs: tt.timeoutMs}
			base := time.Duration(tt.timeoutMs) * time.Millisecond
			deadline := coordinator.RequestTimeout(base, true)

			if got := writeTimeout(cfg); got <= deadline {
				t.Errorf("writeTimeout = %v, must outlast streaming deadline %v", got, deadline)
			}
		})
	}
}

func TestNewServerDerivesWriteTimeout(t *testing.T) {
	cfg := &config.Config{
		ServerPort:  ":0",
		UpstreamURL: "http://localhost:9000",
		TimeoutMs:   600000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewServer(cfg, nil, logger)

	want := coordinator.RequestTimeout(600000*time.Millisecond, true) + writeTimeoutSlack
	if got := s.httpServer.WriteTimeout; got != want {
		t.Errorf("WriteTimeout = %v, want %v", got, want)
	}
}
