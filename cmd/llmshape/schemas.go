package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/schema"
)

// schemaEntry is one row of `llmshape schemas`.
type schemaEntry struct {
	Name        string `json:"name" yaml:"name"`
	Source      string `json:"source" yaml:"source"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List built-in schemas and schema files in the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := []schemaEntry{}
		for _, name := range schema.Names() {
			s, err := schema.Get(name)
			if err != nil {
				continue
			}
			entries = append(entries, schemaEntry{Name: name, Source: "builtin", Description: s.Description})
		}

		h, err := loadHome()
		if err != nil {
			return err
		}
		files, err := filepath.Glob(filepath.Join(h.SchemasPath(), "*.json"))
		if err != nil {
			return err
		}
		sort.Strings(files)
		for _, f := range files {
			entry := schemaEntry{Name: strings.TrimSuffix(filepath.Base(f), ".json"), Source: f}
			if data, err := os.ReadFile(f); err == nil {
				if s, err := schema.FromJSONSchema(data); err == nil {
					entry.Description = s.Description
				}
			}
			entries = append(entries, entry)
		}

		return api.Output(entries)
	},
}

func init() {
	rootCmd.AddCommand(schemasCmd)
}
