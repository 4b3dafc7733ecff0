package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/home"
	"github.com/jackzampolin/llmshape/internal/llmcall"
	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/schema"
)

var (
	extractSchema    string
	extractPrompt    string
	extractSystem    string
	extractPromptKey string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a document matching a JSON Schema from a prompt",
	Long: `Send a prompt plus a JSON Schema to the backend and print the validated document.

--schema takes a file path, or a bare name that resolves to a registered
schema (city_list, pet_list) or to {home}/schemas/<name>.json.
--prompt "-" reads the prompt from stdin.

Examples:
  llmshape extract --schema person.json --prompt "Ada Lovelace was born in 1815"
  llmshape extract --schema city_list --prompt "Three cities on the Danube"
  cat email.txt | llmshape extract --schema invoice --prompt - --system "Extract the invoice."`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if extractSchema == "" {
			return fmt.Errorf("--schema is required")
		}
		user, err := readPrompt(cmd.InOrStdin(), extractPrompt)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		rt, err := setupRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		s, err := loadSchema(rt.services.Home, extractSchema)
		if err != nil {
			return err
		}

		ex, err := rt.extractor(llmcall.RecordOptions{
			PromptKey:  extractPromptKey,
			PromptHash: prompts.HashText(user),
		})
		if err != nil {
			return err
		}

		req := extract.NewRequest(s, user)
		if extractSystem != "" {
			req.WithSystem(extractSystem)
		}

		res, err := extract.ExtractWithRetry[map[string]any](ctx, ex, req, retryPolicy())
		if err != nil {
			return err
		}
		return api.Output(res.Value)
	},
}

// readPrompt returns the prompt flag, reading stdin for "-".
func readPrompt(stdin io.Reader, prompt string) (string, error) {
	if prompt != "-" {
		if strings.TrimSpace(prompt) == "" {
			return "", fmt.Errorf("--prompt is required")
		}
		return prompt, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// loadSchema resolves ref as a registered schema name or a JSON Schema file.
func loadSchema(h *home.Dir, ref string) (*schema.Schema, error) {
	if s, err := schema.Get(ref); err == nil {
		return s, nil
	}
	path := ref
	if h != nil {
		path = h.SchemaPath(ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %q: %w", ref, err)
	}
	s, err := schema.FromJSONSchema(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", path, err)
	}
	return s, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractSchema, "schema", "", "JSON Schema file or registered schema name")
	extractCmd.Flags().StringVar(&extractPrompt, "prompt", "", `User prompt ("-" reads stdin)`)
	extractCmd.Flags().StringVar(&extractSystem, "system", "", "Optional system prompt")
	extractCmd.Flags().StringVar(&extractPromptKey, "prompt-key", "", "Label recorded in call history")

	rootCmd.AddCommand(extractCmd)
}
