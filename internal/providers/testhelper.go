package providers

import (
	"os"
)

// TestConfig holds backend locations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OllamaURL   string
	OllamaModel string
	OpenAIURL   string
	OpenAIKey   string
}

// LoadTestConfig loads backend settings from environment variables.
// Returns a TestConfig with whatever values are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OllamaURL:   os.Getenv("LLMSHAPE_OLLAMA_URL"),
		OllamaModel: os.Getenv("LLMSHAPE_OLLAMA_MODEL"),
		OpenAIURL:   os.Getenv("LLMSHAPE_OPENAI_URL"),
		OpenAIKey:   os.Getenv("LLMSHAPE_OPENAI_API_KEY"),
	}
}

// HasOllama returns true if a live Ollama server is configured.
func (c TestConfig) HasOllama() bool {
	return c.OllamaURL != ""
}

// HasOpenAI returns true if a live OpenAI-compatible server is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIURL != ""
}

// NewOllamaBackend creates an Ollama backend from test config.
// Returns nil if not configured.
func (c TestConfig) NewOllamaBackend() *OllamaBackend {
	if !c.HasOllama() {
		return nil
	}
	return NewOllamaBackend(OllamaConfig{
		BaseURL: c.OllamaURL,
		Model:   c.OllamaModel,
	})
}

// NewOpenAIBackend creates an OpenAI-compatible backend from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenAIBackend() *OpenAIBackend {
	if !c.HasOpenAI() {
		return nil
	}
	return NewOpenAIBackend(OpenAIConfig{
		BaseURL: c.OpenAIURL,
		APIKey:  c.OpenAIKey,
		Model:   c.OllamaModel,
	})
}

// ToRegistryConfig converts test config to a RegistryConfig for the backend registry.
// Only includes backends that are configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		Backends: make(map[string]BackendConfig),
	}

	if c.HasOllama() {
		cfg.Backends["ollama"] = BackendConfig{
			Type:    TypeOllama,
			BaseURL: c.OllamaURL,
			Model:   c.OllamaModel,
			Enabled: true,
		}
		cfg.Default = "ollama"
	}

	if c.HasOpenAI() {
		cfg.Backends["openai"] = BackendConfig{
			Type:    TypeOpenAI,
			BaseURL: c.OpenAIURL,
			APIKey:  c.OpenAIKey,
			Model:   c.OllamaModel,
			Enabled: true,
		}
		if cfg.Default == "" {
			cfg.Default = "openai"
		}
	}

	return cfg
}
