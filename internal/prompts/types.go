// Package prompts provides prompt management with embedded defaults and config-level overrides.
//
// The package supports a hybrid model where:
//   - Embedded .tmpl files in code are the source of truth for defaults
//   - The prompts section of the config file may replace any embedded text by key
//
// Resolution order:
//  1. Config override (if set for the key)
//  2. Embedded default (from .tmpl files in code)
//
// Every resolved prompt carries the SHA256 hash of the text that was used, so
// call history can link an extraction to the exact prompt version.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: extract.schema_instruction
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key        string   `json:"key" yaml:"key"`
	Text       string   `json:"text" yaml:"text"`
	Variables  []string `json:"variables,omitempty" yaml:"variables,omitempty"`
	IsOverride bool     `json:"is_override" yaml:"is_override"` // true if from config
	Hash       string   `json:"hash" yaml:"hash"`
}
