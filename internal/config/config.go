package config

import (
	"os"
	"strconv"
)

// Config holds application configuration loaded from environment and file.
// Priority: Env vars → config.toml → defaults
type Config struct {
	// ServerPort is the address to bind the server to (e.g., ":8080")
	ServerPort string

	// UpstreamURL is the base URL of the LLM aggregation API.
	UpstreamURL string

	// TimeoutMs is the non-streaming request timeout in milliseconds.
	// Streaming requests get a multiple of this, floored at a fixed minimum.
	TimeoutMs int

	// EnableMetrics exposes prometheus metrics at /metrics.
	EnableMetrics bool

	// Default routing for model ids absent from the binding table
	Default *DefaultBinding

	// Models contains the model binding table
	Models []ModelBinding
}

// Defaults applied when neither env nor file provide a value.
const (
	DefaultServerPort  = ":8080"
	DefaultUpstreamURL = "http://localhost:9000"
	DefaultTimeoutMs   = 30000
)

// Load reads configuration from file and environment variables.
// Environment variables override file config values.
func Load() *Config {
	fileConfig, _ := LoadFile() // Ignore error, use defaults

	return &Config{
		ServerPort:    getEnvOrFile("SERVER_PORT", fileConfig.ServerPort, DefaultServerPort),
		UpstreamURL:   getEnvOrFile("UPSTREAM_URL", fileConfig.UpstreamURL, DefaultUpstreamURL),
		TimeoutMs:     getEnvIntOrFile("TIMEOUT_MS", fileConfig.TimeoutMs, DefaultTimeoutMs),
		EnableMetrics: getEnvBoolOrFile("ENABLE_METRICS", fileConfig.EnableMetrics, true),
		Default:       fileConfig.Default,
		Models:        fileConfig.Models,
	}
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getEnvIntOrFile returns env int, file int, or default (in priority order)
func getEnvIntOrFile(key string, fileValue *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	if fileValue != nil && *fileValue > 0 {
		return *fileValue
	}
	return defaultValue
}

// getEnvBoolOrFile returns env bool, file bool, or default (in priority order)
func getEnvBoolOrFile(key string, fileValue *bool, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}
