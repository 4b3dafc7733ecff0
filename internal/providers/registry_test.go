package providers

import (
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockBackend()

		r.Register("test", mock)

		backend, err := r.Get("test")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if backend != mock {
			t.Error("got different backend than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Get("nonexistent"); err == nil {
			t.Error("expected error for nonexistent backend")
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		r := NewRegistry()
		r.Register("b", NewMockBackend())
		r.Register("a", NewMockBackend())

		list := r.List()
		if len(list) != 2 || list[0] != "a" || list[1] != "b" {
			t.Errorf("List() = %v", list)
		}
	})

	t.Run("default", func(t *testing.T) {
		r := NewRegistry()
		if _, _, err := r.Default(); err == nil {
			t.Error("expected error with no backends")
		}

		only := NewMockBackend()
		r.Register("only", only)
		backend, name, err := r.Default()
		if err != nil || backend != only || name != "only" {
			t.Errorf("Default() = %v, %q, %v; want single backend", backend, name, err)
		}

		r.Register("other", NewMockBackend())
		if _, _, err := r.Default(); err == nil {
			t.Error("expected error with two backends and no default")
		}

		r.SetDefault("other")
		if _, name, err := r.Default(); err != nil || name != "other" {
			t.Errorf("Default() = %q, %v", name, err)
		}

		r.SetDefault("missing")
		if _, _, err := r.Default(); err == nil {
			t.Error("expected error for unregistered default")
		}
	})

	t.Run("resolve", func(t *testing.T) {
		r := NewRegistry()
		r.Register("a", NewMockBackend())
		r.SetDefault("a")

		if _, name, err := r.Resolve(""); err != nil || name != "a" {
			t.Errorf("Resolve(\"\") = %q, %v", name, err)
		}
		if _, _, err := r.Resolve("b"); err == nil {
			t.Error("expected error resolving unknown backend")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Register("shared", NewMockBackend())
				r.Get("shared")
				r.List()
				r.Has("shared")
			}()
		}
		wg.Wait()
	})
}

func TestRegistry_Reload(t *testing.T) {
	cfg := RegistryConfig{
		Default: "local",
		Backends: map[string]BackendConfig{
			"local":    {Type: TypeOllama, BaseURL: "http://localhost:11434", Enabled: true},
			"compat":   {Type: TypeOpenAI, BaseURL: "http://localhost:11434/v1", Enabled: true},
			"disabled": {Type: TypeOllama, Enabled: false},
			"bogus":    {Type: "carrier-pigeon", Enabled: true},
		},
	}

	r := NewRegistryFromConfig(cfg)

	if got := r.List(); len(got) != 2 {
		t.Fatalf("List() = %v, want local and compat", got)
	}
	local, _ := r.Get("local")
	if _, ok := local.(*OllamaBackend); !ok {
		t.Errorf("local = %T, want *OllamaBackend", local)
	}
	compat, _ := r.Get("compat")
	if _, ok := compat.(*OpenAIBackend); !ok {
		t.Errorf("compat = %T, want *OpenAIBackend", compat)
	}
	if r.DefaultName() != "local" {
		t.Errorf("DefaultName() = %q", r.DefaultName())
	}

	t.Run("unchanged config keeps instance", func(t *testing.T) {
		r.Reload(cfg)
		again, _ := r.Get("local")
		if again != local {
			t.Error("unchanged backend was recreated")
		}
	})

	t.Run("changed config recreates", func(t *testing.T) {
		changed := RegistryConfig{
			Default: "local",
			Backends: map[string]BackendConfig{
				"local": {Type: TypeOllama, BaseURL: "http://gpu-box:11434", Enabled: true},
			},
		}
		r.Reload(changed)

		updated, err := r.Get("local")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if updated == local {
			t.Error("changed backend was not recreated")
		}
		if r.Has("compat") {
			t.Error("removed backend still registered")
		}
	})

	t.Run("manually registered backends survive reload", func(t *testing.T) {
		r.Register("manual", NewMockBackend())
		r.Reload(RegistryConfig{})
		if !r.Has("manual") {
			t.Error("manual backend removed by reload")
		}
		if r.Has("local") {
			t.Error("config backend should be removed")
		}
	})
}
