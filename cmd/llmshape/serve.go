package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the llmshape server",
	Long: `Start the llmshape HTTP server.

Backends and prompt overrides are reloaded when the config file changes.
When history.enabled is set, every extraction is recorded to
{home}/history.db (or history.path).

The server provides:
  - /health             Basic server health check
  - /ready              Readiness check (backends registered)
  - /status             Backends, default mode and history state
  - /api/extract        Run an extraction
  - /api/llmcalls       Call history and statistics
  - /api/prompts        Prompt texts and hashes
  - /metrics            Prometheus metrics

Examples:
  llmshape serve                    # Start on default port 8080
  llmshape serve --port 3000        # Start on custom port
  llmshape serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Get home directory
		h, err := loadHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		mgr.WatchConfig()

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
