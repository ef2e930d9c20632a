// Package handler implements the HTTP endpoints that orchestrate request
// validation, binding resolution and the relay/coordinator pipeline.
package handler

import (
	"log/slog"
	"time"

	"streamgate/internal/binding"
	"streamgate/internal/metrics"
	"streamgate/internal/storage"
	"streamgate/internal/tokenizer"
	"streamgate/internal/upstream"
)

// ProviderName labels log rows and diagnostics for the single upstream.
const ProviderName = "aggregator"

// Handlers holds the dependencies for the proxy HTTP handlers.
type Handlers struct {
	Upstream  *upstream.Client
	Bindings  *binding.Resolver
	Estimator tokenizer.Estimator
	Storage   storage.Storage
	Metrics   *metrics.Collector
	Logger    *slog.Logger

	// TimeoutBase is the non-streaming request timeout; streaming requests
	// are sized from it (see coordinator.RequestTimeout).
	TimeoutBase time.Duration
}

// New creates a new instance of the proxy handlers.
func New(up *upstream.Client, bindings *binding.Resolver, est tokenizer.Estimator,
	store storage.Storage, collector *metrics.Collector, logger *slog.Logger,
	timeoutBase time.Duration) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Upstream:    up,
		Bindings:    bindings,
		Estimator:   est,
		Storage:     store,
		Metrics:     collector,
		Logger:      logger,
		TimeoutBase: timeoutBase,
	}
}
