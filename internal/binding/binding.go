// Package binding resolves client-facing model identifiers to upstream
// provider and backend model identifiers.
package binding

import (
	"log/slog"

	"streamgate/internal/config"
)

// Binding is the resolved mapping for one client-facing model id.
type Binding struct {
	Provider      string
	BackendFamily string
	BackendModel  string
}

// Resolver looks up model bindings with O(1) slug access and a configured
// default fallback for unknown ids.
type Resolver struct {
	slugMap  map[string]Binding
	default_ *config.DefaultBinding
	logger   *slog.Logger
}

// NewResolver builds the slug map at startup (not per-request).
func NewResolver(cfg *config.Config, logger *slog.Logger) *Resolver {
	r := &Resolver{
		slugMap:  make(map[string]Binding, len(cfg.Models)),
		default_: cfg.Default,
		logger:   logger,
	}
	for _, m := range cfg.Models {
		r.slugMap[m.Slug] = Binding{
			Provider:      m.Provider,
			BackendFamily: m.BackendFamily,
			BackendModel:  m.BackendModel,
		}
	}
	return r
}

// Resolve returns the binding for a model id. Unknown ids fall back to the
// configured default binding with a warning diagnostic; this is never an
// error, the upstream decides whether it can serve the model.
func (r *Resolver) Resolve(model string) Binding {
	if b, ok := r.slugMap[model]; ok {
		return b
	}

	if r.logger != nil {
		r.logger.Warn("model not in binding table, using default binding", "model", model)
	}

	if r.default_ != nil {
		backendModel := r.default_.BackendModel
		if backendModel == "" {
			// Pass the original id through and let the upstream resolve it
			backendModel = model
		}
		return Binding{
			Provider:      r.default_.Provider,
			BackendFamily: r.default_.BackendFamily,
			BackendModel:  backendModel,
		}
	}

	return Binding{Provider: "aggregator", BackendFamily: "openai", BackendModel: model}
}

// Known reports whether the model id has an explicit binding.
func (r *Resolver) Known(model string) bool {
	_, ok := r.slugMap[model]
	return ok
}

// Slugs returns all explicitly bound model ids, for catalog listing.
func (r *Resolver) Slugs() []string {
	slugs := make([]string, 0, len(r.slugMap))
	for s := range r.slugMap {
		slugs = append(slugs, s)
	}
	return slugs
}
