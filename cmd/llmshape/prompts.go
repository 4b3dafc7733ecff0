package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
)

// promptEntry is one row of `llmshape prompts`.
type promptEntry struct {
	Key         string   `json:"key" yaml:"key"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Variables   []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Hash        string   `json:"hash" yaml:"hash"`
	IsOverride  bool     `json:"is_override" yaml:"is_override"`
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List prompt keys, their hashes and whether config overrides them",
	Long: `List every embedded prompt. Any key can be overridden in the config file:

  prompts:
    extract.schema_instruction: |
      Reply with JSON matching this schema: {{.Schema}}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		r := newPromptResolver(mgr.Get())

		entries := []promptEntry{}
		for _, p := range r.AllEmbedded() {
			resolved, err := r.Resolve(p.Key)
			if err != nil {
				return err
			}
			entries = append(entries, promptEntry{
				Key:         p.Key,
				Description: p.Description,
				Variables:   resolved.Variables,
				Hash:        resolved.Hash,
				IsOverride:  resolved.IsOverride,
			})
		}
		return api.Output(entries)
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the text a prompt key resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := loadHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		resolved, err := newPromptResolver(mgr.Get()).Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), resolved.Text)
		return nil
	},
}

func init() {
	promptsCmd.AddCommand(promptsShowCmd)
	rootCmd.AddCommand(promptsCmd)
}
