package main

import (
	"log"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"streamgate/internal/app"
	"streamgate/internal/binding"
	"streamgate/internal/config"
	"streamgate/internal/metrics"
	"streamgate/internal/storage"
	"streamgate/internal/tokenizer"
	"streamgate/internal/transport/http/handler"
	"streamgate/internal/transport/http/middleware/auth"
	"streamgate/internal/transport/http/middleware/ratelimit"
	"streamgate/internal/upstream"
)

func main() {
	logger := setupLogger()

	// Config: env vars → ~/.streamgate/config.toml → defaults
	if err := config.EnsureDataDir(); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	if err := config.EnsureConfigFile(); err != nil {
		log.Fatalf("failed to create config file: %v", err)
	}
	cfg := config.Load()

	// Storage (WAL-mode SQLite under the data dir)
	store, err := storage.NewSQLite(config.DBPath())
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer store.Close()

	// First run: generate a client API key and print it once
	if err := ensureBootstrapKey(store); err != nil {
		log.Fatalf("first-time setup failed: %v", err)
	}

	// Cache for verified API keys (avoids argon2 on every request)
	keyCache, err := ristretto.NewCache(&ristretto.Config[string, *auth.CachedAPIKey]{
		NumCounters: 1e6,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		log.Fatalf("failed to create key cache: %v", err)
	}

	collector := metrics.NewCollector()

	h := handler.New(
		upstream.New(cfg.UpstreamURL),
		binding.NewResolver(cfg, logger),
		tokenizer.New(),
		store,
		collector,
		logger,
		time.Duration(cfg.TimeoutMs)*time.Millisecond,
	)

	router := app.NewRouter(h, &app.RouterOptions{
		Logger:        logger,
		Storage:       store,
		APIKeyCache:   keyCache,
		Limiter:       ratelimit.New(),
		Metrics:       collector,
		EnableMetrics: cfg.EnableMetrics,
	})

	printStartupBanner(cfg)

	srv := app.NewServer(cfg, router, logger)
	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}
}
