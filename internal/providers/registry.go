package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Backend types accepted in configuration.
const (
	TypeOllama = "ollama"
	TypeOpenAI = "openai"
	TypeMock   = "mock"
)

// Registry holds references to configured backends.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]Backend
	configs     map[string]BackendConfig
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates a new empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		configs:  make(map[string]BackendConfig),
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a backend by name.
func (r *Registry) Register(name string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = backend
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("registered backend", "name", name, "type", backend.Name())
	}
}

// Unregister removes a backend by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("unregistered backend", "name", name)
	}
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend not found: %s", name)
	}
	return backend, nil
}

// Has checks if a backend is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[name]
	return ok
}

// List returns all registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the name returned by Default.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultName returns the configured default backend name.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Default returns the configured default backend. With no default set and a
// single registered backend, that backend is returned.
func (r *Registry) Default() (Backend, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultName != "" {
		backend, ok := r.backends[r.defaultName]
		if !ok {
			return nil, "", fmt.Errorf("default backend not registered: %s", r.defaultName)
		}
		return backend, r.defaultName, nil
	}
	if len(r.backends) == 1 {
		for name, backend := range r.backends {
			return backend, name, nil
		}
	}
	return nil, "", fmt.Errorf("no default backend configured")
}

// Resolve returns the named backend, or the default when name is empty.
func (r *Registry) Resolve(name string) (Backend, string, error) {
	if name == "" {
		return r.Default()
	}
	backend, err := r.Get(name)
	if err != nil {
		return nil, "", err
	}
	return backend, name, nil
}

// RegistryConfig defines the backends to instantiate from config.
// This mirrors the config.Config structure for backend setup.
type RegistryConfig struct {
	// Backends maps backend names to their config
	Backends map[string]BackendConfig

	// Default is the backend used when a caller names none
	Default string
}

// BackendConfig matches config.BackendCfg with resolved API key.
type BackendConfig struct {
	Type    string        // "ollama", "openai", "mock"
	BaseURL string        // Server base URL
	Model   string        // Default model
	APIKey  string        // Resolved API key (openai only)
	Timeout time.Duration // HTTP client timeout
	Enabled bool
}

// NewRegistryFromConfig creates a registry with backends based on configuration.
// Only enabled backends of a known type will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Backends that are no longer configured will be unregistered.
// Backends with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)

	for name, backendCfg := range cfg.Backends {
		if !backendCfg.Enabled {
			continue
		}
		want[name] = true

		prev, hasExisting := r.configs[name]
		if hasExisting && prev == backendCfg {
			continue
		}
		backend := createBackend(backendCfg)
		if backend == nil {
			if r.logger != nil {
				r.logger.Warn("unknown backend type", "name", name, "type", backendCfg.Type)
			}
			delete(want, name)
			continue
		}
		_, wasRegistered := r.backends[name]
		r.backends[name] = backend
		r.configs[name] = backendCfg
		if r.logger != nil {
			if wasRegistered {
				r.logger.Info("updated backend", "name", name, "type", backendCfg.Type)
			} else {
				r.logger.Info("registered backend", "name", name, "type", backendCfg.Type)
			}
		}
	}

	// Remove config-driven backends that are no longer configured
	for name := range r.configs {
		if !want[name] {
			delete(r.backends, name)
			delete(r.configs, name)
			if r.logger != nil {
				r.logger.Info("unregistered backend", "name", name)
			}
		}
	}

	r.defaultName = cfg.Default
}

// createBackend creates a backend based on its type.
func createBackend(cfg BackendConfig) Backend {
	switch cfg.Type {
	case TypeOllama:
		return NewOllamaBackend(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case TypeOpenAI:
		return NewOpenAIBackend(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case TypeMock:
		return NewMockBackend()
	default:
		return nil
	}
}
