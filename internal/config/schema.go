package config

import "time"

// Config holds llmshape configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Backends map[string]BackendCfg `mapstructure:"backends" yaml:"backends"`
	Defaults DefaultsCfg           `mapstructure:"defaults" yaml:"defaults"`
	History  HistoryCfg            `mapstructure:"history" yaml:"history"`
	Prompts  map[string]string     `mapstructure:"prompts" yaml:"prompts"`
}

// BackendCfg configures one LLM backend.
type BackendCfg struct {
	Type           string `mapstructure:"type" yaml:"type"`                       // "ollama", "openai", "mock"
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`               // Server base URL
	APIKey         string `mapstructure:"api_key" yaml:"api_key,omitempty"`       // API key (supports ${ENV_VAR} syntax)
	Model          string `mapstructure:"model" yaml:"model"`                     // Default model
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // HTTP client timeout
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies extraction defaults.
type DefaultsCfg struct {
	Backend        string  `mapstructure:"backend" yaml:"backend"`                 // Default backend name
	Mode           string  `mapstructure:"mode" yaml:"mode"`                       // schema_parameter | schema_instruction
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`         // Sampling temperature
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // Per-extraction deadline
}

// HistoryCfg configures the sqlite call history.
type HistoryCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // Empty uses {home}/history.db
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backends: map[string]BackendCfg{
			"ollama": {
				Type:           "ollama",
				BaseURL:        "http://localhost:11434",
				Model:          "llama3.2:latest",
				TimeoutSeconds: 30,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				BaseURL:        "http://localhost:11434/v1",
				APIKey:         "ollama",
				Model:          "llama3.2:latest",
				TimeoutSeconds: 30,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			Backend:        "ollama",
			Mode:           "schema_parameter",
			Temperature:    0,
			TimeoutSeconds: 30,
		},
		History: HistoryCfg{
			Enabled: false,
		},
		Prompts: map[string]string{},
	}
}

// GetBackend returns a backend config by name.
func (c *Config) GetBackend(name string) (BackendCfg, bool) {
	cfg, ok := c.Backends[name]
	return cfg, ok
}

// EnabledBackends returns all enabled backends.
func (c *Config) EnabledBackends() map[string]BackendCfg {
	result := make(map[string]BackendCfg)
	for name, cfg := range c.Backends {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Timeout returns the per-extraction deadline, or zero when unset.
func (d DefaultsCfg) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}
