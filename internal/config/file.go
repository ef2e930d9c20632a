package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file structure.
type FileConfig struct {
	ServerPort    string          `toml:"server_port"`
	UpstreamURL   string          `toml:"upstream_url"`
	TimeoutMs     *int            `toml:"timeout_ms"`
	EnableMetrics *bool           `toml:"enable_metrics"`
	Default       *DefaultBinding `toml:"default"`
	Models        []ModelBinding  `toml:"models"`
}

// DefaultBinding defines the fallback provider and backend model for
// client model ids absent from the binding table.
type DefaultBinding struct {
	Provider      string `toml:"provider"`
	BackendFamily string `toml:"family"`
	BackendModel  string `toml:"model"`
}

// ModelBinding maps a client-facing model id to an upstream provider,
// backend family and backend model id.
type ModelBinding struct {
	Slug          string `toml:"slug"`
	Provider      string `toml:"provider"`
	BackendFamily string `toml:"family"`
	BackendModel  string `toml:"model"`
}

// ConfigPath returns the path to the config file (~/.streamgate/config.toml).
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadFile loads configuration from the TOML file.
// Returns an empty FileConfig if the file doesn't exist.
func LoadFile() (*FileConfig, error) {
	cfg := &FileConfig{}

	path := ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureConfigFile creates a default config file with commented examples if none exists.
func EnsureConfigFile() error {
	path := ConfigPath()

	// If config already exists, do nothing
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Ensure directory exists
	if err := EnsureDataDir(); err != nil {
		return err
	}

	defaultConfig := `# Streamgate Configuration
# server_port = ":8080"
# upstream_url = "http://localhost:9000"
# timeout_ms = 30000
# enable_metrics = true

# Fallback binding for model ids not listed below
# [default]
# provider = "aggregator"
# family = "openai"
# model = "gpt-4o-mini"

# Model bindings - map client model ids to backend family/model combinations
# [[models]]
# slug = "gpt4"
# provider = "aggregator"
# family = "openai"
# model = "gpt-4o"

# [[models]]
# slug = "claude"
# provider = "aggregator"
# family = "anthropic"
# model = "claude-3.5-sonnet"
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
