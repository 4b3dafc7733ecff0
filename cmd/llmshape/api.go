package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/server/endpoints"
)

var serverURL string

var llmcallsCmd = &cobra.Command{
	Use:   "llmcalls",
	Short: "LLM call history commands",
}

var apiPromptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Prompt commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

// topLevel are the endpoints exposed directly under "api".
func topLevel() *api.Registry {
	reg := api.NewRegistry()
	reg.Register(&endpoints.HealthEndpoint{})
	reg.Register(&endpoints.ReadyEndpoint{})
	reg.Register(&endpoints.StatusEndpoint{})
	reg.Register(&endpoints.ExtractEndpoint{})
	reg.Register(&endpoints.ListSchemasEndpoint{})
	reg.Register(&endpoints.MetricsEndpoint{})
	reg.Register(&endpoints.SwaggerEndpoint{})
	return reg
}

func init() {
	apiCmd := topLevel().BuildCommands(getServerURL)

	// Persistent so all subcommands inherit it
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// LLM calls as subcommand group
	for _, ep := range endpoints.LLMCallCommands() {
		llmcallsCmd.AddCommand(ep.Command(getServerURL))
	}

	// Prompts as subcommand group
	for _, ep := range endpoints.PromptCommands() {
		apiPromptsCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(llmcallsCmd)
	apiCmd.AddCommand(apiPromptsCmd)
	rootCmd.AddCommand(apiCmd)
}
