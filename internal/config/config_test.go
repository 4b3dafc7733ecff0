package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Backends) != 2 {
		t.Fatalf("expected 2 default backends, got %d", len(cfg.Backends))
	}
	ollama, ok := cfg.GetBackend("ollama")
	if !ok {
		t.Fatal("expected ollama backend")
	}
	if ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected ollama base url: %s", ollama.BaseURL)
	}
	if cfg.Defaults.Backend != "ollama" {
		t.Errorf("expected default backend ollama, got %s", cfg.Defaults.Backend)
	}
	if cfg.Defaults.Mode != "schema_parameter" {
		t.Errorf("expected schema_parameter mode, got %s", cfg.Defaults.Mode)
	}
	if cfg.Defaults.Timeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Defaults.Timeout())
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled by default")
	}
}

func TestEnabledBackends(t *testing.T) {
	cfg := &Config{
		Backends: map[string]BackendCfg{
			"a": {Type: "ollama", Enabled: true},
			"b": {Type: "openai", Enabled: false},
		},
	}
	enabled := cfg.EnabledBackends()
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled backend, got %d", len(enabled))
	}
	if _, ok := enabled["a"]; !ok {
		t.Error("expected backend a to be enabled")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})

	t.Run("expands inside a larger string", func(t *testing.T) {
		t.Setenv("TEST_OLLAMA_HOST", "gpu-box")

		result := ResolveEnvVars("http://${TEST_OLLAMA_HOST}:11434")
		if result != "http://gpu-box:11434" {
			t.Errorf("expected expanded url, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg := &Config{
		Backends: map[string]BackendCfg{
			"local": {
				Type:           "ollama",
				BaseURL:        "http://localhost:11434",
				Model:          "qwen2.5:7b",
				TimeoutSeconds: 45,
				Enabled:        true,
			},
			"remote": {
				Type:    "openai",
				BaseURL: "https://api.example.com/v1",
				APIKey:  "${TEST_OPENAI_KEY}",
				Enabled: false,
			},
		},
		Defaults: DefaultsCfg{Backend: "local"},
	}

	rc := cfg.ToProviderRegistryConfig()
	if rc.Default != "local" {
		t.Errorf("expected default local, got %s", rc.Default)
	}
	local := rc.Backends["local"]
	if local.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", local.Timeout)
	}
	if local.Model != "qwen2.5:7b" {
		t.Errorf("unexpected model: %s", local.Model)
	}
	remote := rc.Backends["remote"]
	if remote.APIKey != "sk-test" {
		t.Errorf("expected resolved api key, got %q", remote.APIKey)
	}
	if remote.Enabled {
		t.Error("expected remote to stay disabled")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
backends:
  local:
    type: ollama
    base_url: http://10.0.0.5:11434
    model: mistral:7b
    enabled: true
defaults:
  backend: local
  mode: schema_instruction
prompts:
  extract.schema_instruction: "Answer with JSON for {{.Name}}"
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		local, ok := cfg.GetBackend("local")
		if !ok {
			t.Fatal("expected local backend")
		}
		if local.BaseURL != "http://10.0.0.5:11434" {
			t.Errorf("unexpected base url: %s", local.BaseURL)
		}
		if cfg.Defaults.Mode != "schema_instruction" {
			t.Errorf("expected schema_instruction, got %s", cfg.Defaults.Mode)
		}
		if cfg.Prompts["extract.schema_instruction"] == "" {
			t.Error("expected prompt override to load")
		}
	})

	t.Run("fills unset defaults", func(t *testing.T) {
		configFile := writeConfig(t, `
defaults:
  backend: openai
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.Backend != "openai" {
			t.Errorf("expected openai, got %s", cfg.Defaults.Backend)
		}
		if cfg.Defaults.TimeoutSeconds != 30 {
			t.Errorf("expected default timeout 30, got %d", cfg.Defaults.TimeoutSeconds)
		}
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		configFile := writeConfig(t, "backends: [unterminated\n")

		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected error for malformed config")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	configFile := writeConfig(t, `
defaults:
  backend: ollama
`)

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	configFile := writeConfig(t, `
defaults:
  backend: ollama
`)

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Defaults.Backend
			}
			done <- struct{}{}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, `
defaults:
  backend: ollama
`)

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if got := mgr.Get().Defaults.Backend; got != "ollama" {
		t.Errorf("initial value mismatch: expected ollama, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Defaults.Backend)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("defaults:\n  backend: openai\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "openai" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Defaults.Backend; got != "openai" {
		t.Errorf("config not updated: expected openai, got %s", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# llmshape configuration") {
		t.Error("expected header comment")
	}
	for _, want := range []string{"backends:", "ollama:", "schema_parameter", "history:"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in written config", want)
		}
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default config should load: %v", err)
	}
	if mgr.Get().Defaults.Backend != "ollama" {
		t.Errorf("expected ollama default after round trip")
	}
}
