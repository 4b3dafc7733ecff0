// Package testutil holds helpers for tests that run a real llmshape server
// against fake backends.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// ServerConfig returns configuration values for creating a test server.
// This avoids importing the server package directly.
type ServerConfig struct {
	Host        string
	Port        string
	HomeDir     string
	ConfigFile  string
	HistoryPath string
	Logger      *slog.Logger
}

// NewServerConfig creates configuration for a test server with a unique port
// and a throwaway home directory.
func NewServerConfig(t *testing.T) ServerConfig {
	t.Helper()

	level := slog.LevelWarn
	if os.Getenv("LLMSHAPE_TEST_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	tempDir := t.TempDir()

	httpPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}

	return ServerConfig{
		Host:        "127.0.0.1",
		Port:        httpPort,
		HomeDir:     tempDir,
		ConfigFile:  filepath.Join(tempDir, "config.yaml"),
		HistoryPath: filepath.Join(tempDir, "history.db"),
		Logger:      logger,
	}
}

// URL returns the server URL for the given config.
func (c ServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
}

// WriteConfig writes a config file for the test server.
func (c ServerConfig) WriteConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(c.ConfigFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// WaitForServer polls the /status endpoint until the server reports running.
func WaitForServer(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/status")
		if err == nil {
			var status StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&status); err == nil && status.Server == "running" {
				resp.Body.Close()
				return nil
			}
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// WaitForShutdown waits for a channel to receive a value or timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// HTTPClient returns an HTTP client for making requests.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}

// StartServer is a helper type for managing server lifecycle in tests.
// Usage:
//
//	cfg := testutil.NewServerConfig(t)
//	srv, err := server.New(server.Config{...from cfg...})
//	starter := testutil.StartServer{Cancel: cancel, Done: done}
//	t.Cleanup(func() { starter.Stop() })
type StartServer struct {
	Cancel context.CancelFunc
	Done   <-chan error
}

// Stop cancels the server context and waits for shutdown.
func (s *StartServer) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
	if s.Done != nil {
		<-s.Done
	}
}

// StatusResponse matches the server's StatusResponse structure.
type StatusResponse struct {
	Server   string `json:"server"`
	Backends struct {
		Registered []string `json:"registered"`
		Default    string   `json:"default"`
	} `json:"backends"`
	Mode    string `json:"mode"`
	History struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"history"`
}

// GetStatus fetches the /status endpoint and returns the parsed response.
func GetStatus(url string) (*StatusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FakeOllama is an httptest server speaking the Ollama /api/chat protocol.
// Every request is answered with Content as the assistant message.
type FakeOllama struct {
	*httptest.Server
	Content  string
	Requests atomic.Int64
	// LastBody is the most recent request body.
	LastBody atomic.Value
}

// NewFakeOllama starts a fake Ollama server that replies with content.
func NewFakeOllama(t *testing.T, content string) *FakeOllama {
	t.Helper()
	f := &FakeOllama{Content: content}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *FakeOllama) handle(w http.ResponseWriter, r *http.Request) {
	f.Requests.Add(1)
	body, _ := io.ReadAll(r.Body)
	f.LastBody.Store(string(body))

	if r.URL.Path != "/api/chat" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Model string `json:"model"`
	}
	_ = json.Unmarshal(body, &req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"model":             req.Model,
		"created_at":        time.Now().UTC().Format(time.RFC3339Nano),
		"message":           map[string]any{"role": "assistant", "content": f.Content},
		"done":              true,
		"prompt_eval_count": 12,
		"eval_count":        8,
	})
}
