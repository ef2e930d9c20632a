package app

import (
	"log/slog"
	"net/http"
	"time"

	"streamgate/internal/config"
	"streamgate/internal/coordinator"
)

// writeTimeoutSlack covers the terminal envelope write and connection
// teardown after the coordinator's own timer has fired.
const writeTimeoutSlack = 30 * time.Second

// writeTimeout sizes the server's write deadline off the longest request
// timeout the coordinator can grant, so the server never kills a stream
// that the coordinator still considers live.
func writeTimeout(cfg *config.Config) time.Duration {
	base := time.Duration(cfg.TimeoutMs) * time.Millisecond
	return coordinator.RequestTimeout(base, true) + writeTimeoutSlack
}

// Server wraps the HTTP server with its configuration
type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates a new configured HTTP server instance
func NewServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  300 * time.Second,
		WriteTimeout: writeTimeout(cfg),
	}

	return &Server{
		httpServer: srv,
		config:     cfg,
		logger:     logger,
	}
}

// Start begins listening and serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("streamgate server starting",
		"addr", s.config.ServerPort, "upstream", s.config.UpstreamURL)

	if err := s.httpServer.ListenAndServe(); err != nil {
		return err
	}
	return nil
}
