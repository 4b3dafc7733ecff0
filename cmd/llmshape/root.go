package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string

	// Extraction overrides shared by cities, pets and extract
	backendName string
	modeName    string
	modelName   string
	timeout     time.Duration
	retries     uint
)

var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "llmshape",
	Short: "Schema-constrained structured extraction from LLM backends",
	Long: `llmshape sends a prompt plus a schema to an LLM backend (Ollama or any
OpenAI-compatible server) and returns the reply as a validated, typed document.

Every failure is classified as one of:
  - connectivity  the backend could not be reached or timed out
  - backend       the backend answered with an error or refused
  - parse         the reply was not JSON
  - validation    the JSON did not match the schema (with the offending path)

Examples:
  llmshape cities --count 3
  llmshape pets "Rex is a 3 year old black labrador who loves tennis balls"
  llmshape extract --schema person.json --prompt "Ada Lovelace was born in 1815"
  llmshape serve`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.llmshape/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "llmshape home directory (default: ~/.llmshape)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level: debug, info, warn, error",
	)
	rootCmd.PersistentFlags().StringVar(
		&backendName, "backend", "", "backend name from config (default: defaults.backend)",
	)
	rootCmd.PersistentFlags().StringVar(
		&modeName, "mode", "", "schema_parameter or schema_instruction (default: defaults.mode)",
	)
	rootCmd.PersistentFlags().StringVar(
		&modelName, "model", "", "model override",
	)
	rootCmd.PersistentFlags().DurationVar(
		&timeout, "timeout", 0, "per-attempt deadline (default: defaults.timeout_seconds)",
	)
	rootCmd.PersistentFlags().UintVar(
		&retries, "retries", 0, "retry transient failures up to N more times",
	)

	// Set output format and logger before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		api.SetOutputFormat(outputFormat)

		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}
