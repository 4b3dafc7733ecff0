package server

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackzampolin/llmshape/internal/testutil"
)

func TestServer_FullLifecycle(t *testing.T) {
	cfg := testutil.NewServerConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv, err := New(Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		HistoryPath: cfg.HistoryPath,
		Logger:      cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	// Wait for server to be ready
	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("health_endpoint", func(t *testing.T) {
		resp, err := http.Get(cfg.URL() + "/health")
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	t.Run("status_reports_history", func(t *testing.T) {
		status, err := testutil.GetStatus(cfg.URL())
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if !status.History.Enabled {
			t.Error("history should be enabled")
		}
		if status.History.Path != cfg.HistoryPath {
			t.Errorf("history path = %q, want %q", status.History.Path, cfg.HistoryPath)
		}
	})

	t.Run("history_file_created", func(t *testing.T) {
		if _, err := os.Stat(cfg.HistoryPath); err != nil {
			t.Errorf("history database not created: %v", err)
		}
	})

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() {
			t.Error("IsRunning() = false, want true")
		}
	})

	t.Run("second_start_fails", func(t *testing.T) {
		if err := srv.Start(ctx); err == nil {
			t.Error("expected error starting a running server")
		}
	})

	// Shutdown server
	serverCancel()
	if err := testutil.WaitForShutdown(serverErr, 10*time.Second); err != nil {
		t.Fatalf("server shutdown error: %v", err)
	}

	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}

	// Server should no longer accept connections
	client := &http.Client{Timeout: time.Second}
	if resp, err := client.Get(cfg.URL() + "/health"); err == nil {
		resp.Body.Close()
		t.Error("server still responding after shutdown")
	}
}

func TestServer_PortInUse(t *testing.T) {
	cfg := testutil.NewServerConfig(t)

	blocker, err := New(Config{Host: cfg.Host, Port: cfg.Port, Logger: cfg.Logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- blocker.Start(ctx) }()
	starter := testutil.StartServer{Cancel: cancel, Done: done}
	t.Cleanup(starter.Stop)

	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		t.Fatalf("first server did not start: %v", err)
	}

	second, err := New(Config{Host: cfg.Host, Port: cfg.Port, Logger: cfg.Logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- second.Start(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected bind error from second server")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("second server did not fail")
	}
	if second.IsRunning() {
		t.Error("failed server should not report running")
	}
}

func TestServer_BadHistoryPath(t *testing.T) {
	cfg := testutil.NewServerConfig(t)

	// A regular file where the history directory should be
	blocker := cfg.HomeDir + "/not-a-dir"
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	srv, err := New(Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		HistoryPath: blocker + "/history.db",
		Logger:      cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Start(ctx); err == nil {
		t.Fatal("expected error opening history under a file")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after failed start")
	}
}
