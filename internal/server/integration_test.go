package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/llmshape/internal/config"
	"github.com/jackzampolin/llmshape/internal/home"
	"github.com/jackzampolin/llmshape/internal/server/endpoints"
	"github.com/jackzampolin/llmshape/internal/testutil"
)

// TestServer_OllamaEndToEnd drives the full stack: config file, backend
// registry, the Ollama wire protocol, history and metrics.
func TestServer_OllamaEndToEnd(t *testing.T) {
	fake := testutil.NewFakeOllama(t, `{"pets":[{"name":"Biscuit","animal":"dog","age":4,"color":"brown"}]}`)
	cfg := testutil.NewServerConfig(t)
	cfg.WriteConfig(t, fmt.Sprintf(`
backends:
  fake:
    type: ollama
    base_url: %s
    model: test-model
    enabled: true
defaults:
  backend: fake
  mode: schema_parameter
history:
  enabled: true
`, fake.URL))

	mgr, err := config.NewManager(cfg.ConfigFile)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}

	srv, err := New(Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		ConfigManager: mgr,
		Home:          h,
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	starter := testutil.StartServer{Cancel: cancel, Done: done}
	t.Cleanup(starter.Stop)

	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	client := testutil.HTTPClient()

	t.Run("status", func(t *testing.T) {
		status, err := testutil.GetStatus(cfg.URL())
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if status.Backends.Default != "fake" {
			t.Errorf("default backend = %q, want fake", status.Backends.Default)
		}
		if !status.History.Enabled {
			t.Error("history should be enabled from config")
		}
	})

	t.Run("extract_pets", func(t *testing.T) {
		body, _ := json.Marshal(endpoints.ExtractRequest{
			SchemaName: "pet_list",
			Prompt:     "Biscuit is a four year old brown dog.",
		})
		resp, err := client.Post(cfg.URL()+"/api/extract", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("POST /api/extract: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var out endpoints.ExtractResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Model != "test-model" {
			t.Errorf("Model = %q, want test-model", out.Model)
		}
		if out.InputTokens != 12 || out.OutputTokens != 8 {
			t.Errorf("tokens = %d/%d, want 12/8", out.InputTokens, out.OutputTokens)
		}

		sent, _ := fake.LastBody.Load().(string)
		if !strings.Contains(sent, `"format"`) {
			t.Errorf("schema_parameter request should carry format, got %s", sent)
		}
		if !strings.Contains(sent, `"stream":false`) {
			t.Errorf("request should disable streaming, got %s", sent)
		}
	})

	t.Run("history_recorded", func(t *testing.T) {
		if err := srv.Sink().Flush(context.Background()); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		resp, err := client.Get(cfg.URL() + "/api/llmcalls?backend=fake")
		if err != nil {
			t.Fatalf("GET /api/llmcalls: %v", err)
		}
		defer resp.Body.Close()

		var list endpoints.LLMCallsResponse
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if list.Total != 1 {
			t.Fatalf("Total = %d, want 1", list.Total)
		}
		call := list.Calls[0]
		if call.Schema != "pet_list" || call.Model != "test-model" || !call.Success {
			t.Errorf("unexpected call record: %+v", call)
		}
	})
}
