package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaBackend_Complete(t *testing.T) {
	t.Run("schema format", func(t *testing.T) {
		var got ollamaChatRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/chat" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"model":   "llama3.2:latest",
				"message": map[string]any{"role": "assistant", "content": `{"ok":true}`},
				"done":    true,
			})
		}))
		defer server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL})
		raw, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages:    []Message{{Role: RoleUser, Content: "hi"}},
			Temperature: Float(0),
			ResponseFormat: &ResponseFormat{
				Kind:   FormatJSONSchema,
				Schema: json.RawMessage(`{"type":"object"}`),
			},
		})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}

		if raw.Content != `{"ok":true}` {
			t.Errorf("Content = %q", raw.Content)
		}
		if raw.Provider != OllamaBackendName {
			t.Errorf("Provider = %q", raw.Provider)
		}
		if raw.RequestID == "" {
			t.Error("RequestID should be set")
		}
		if got.Stream {
			t.Error("stream should be false")
		}
		if string(got.Format) != `{"type":"object"}` {
			t.Errorf("format = %s", got.Format)
		}
		if got.Options == nil || got.Options.Temperature == nil || *got.Options.Temperature != 0 {
			t.Errorf("options = %+v, want temperature 0", got.Options)
		}
		if got.Model != ollamaDefaultModel {
			t.Errorf("model = %q", got.Model)
		}
	})

	t.Run("json flag format", func(t *testing.T) {
		var format json.RawMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]json.RawMessage
			json.NewDecoder(r.Body).Decode(&body)
			format = body["format"]
			_, hasOptions := body["options"]
			if hasOptions {
				t.Error("options should be omitted without temperature")
			}
			w.Write([]byte(`{"message":{"content":"{}"}}`))
		}))
		defer server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL + "/"})
		_, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages:       []Message{{Role: RoleUser, Content: "hi"}},
			ResponseFormat: &ResponseFormat{Kind: FormatJSON},
		})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if string(format) != `"json"` {
			t.Errorf("format = %s, want \"json\"", format)
		}
	})

	t.Run("status error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"loading model"}`))
		}))
		defer server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL})
		_, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected *StatusError, got %v", err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d", statusErr.StatusCode)
		}
		if statusErr.Body != `{"error":"loading model"}` {
			t.Errorf("Body = %q", statusErr.Body)
		}
		if statusErr.RetryAfter != 2*time.Second {
			t.Errorf("RetryAfter = %v", statusErr.RetryAfter)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: url})
		_, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected *TransportError, got %v", err)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL})
		start := time.Now()
		_, err := backend.Complete(ctx, &CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var transportErr *TransportError
		if !errors.As(err, &transportErr) || !transportErr.Timeout() {
			t.Fatalf("expected timeout *TransportError, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("Complete() took %v after a 50ms deadline", elapsed)
		}
	})

	t.Run("unrecognized body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"done":true}`))
		}))
		defer server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL})
		_, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		if !errors.Is(err, ErrUnrecognizedResponse) {
			t.Fatalf("expected ErrUnrecognizedResponse, got %v", err)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message":{"role":"assistant","content":"`))
			w.Write(bytes.Repeat([]byte("a"), maxResponseBodyBytes))
			w.Write([]byte(`"},"done":true}`))
		}))
		defer server.Close()

		backend := NewOllamaBackend(OllamaConfig{BaseURL: server.URL})
		_, err := backend.Complete(context.Background(), &CompletionRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		if !errors.Is(err, ErrResponseTooLarge) {
			t.Fatalf("expected ErrResponseTooLarge, got %v", err)
		}
		if errors.Is(err, ErrUnrecognizedResponse) {
			t.Error("oversized body should not be reported as unrecognized")
		}
	})
}

func TestOllamaBackend_Live(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasOllama() {
		t.Skip("LLMSHAPE_OLLAMA_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	raw, err := cfg.NewOllamaBackend().Complete(ctx, &CompletionRequest{
		Messages:       []Message{{Role: RoleUser, Content: `Reply with the JSON object {"ok": true} and nothing else.`}},
		Temperature:    Float(0),
		ResponseFormat: &ResponseFormat{Kind: FormatJSON},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if raw.Content == "" {
		t.Error("expected content from live backend")
	}
}
