// Package instruction holds the system prompt used when a backend accepts
// only a generic JSON flag and the schema travels in the conversation.
package instruction

import (
	_ "embed"

	"github.com/jackzampolin/llmshape/internal/prompts"
)

//go:embed schema_instruction.tmpl
var schemaInstruction string

// PromptKey is the hierarchical key for this prompt.
const PromptKey = "extract.schema_instruction"

// Data is the template input.
type Data struct {
	Name        string
	Description string
	Schema      string // Indented JSON Schema document
}

// SchemaInstruction returns the embedded template text.
func SchemaInstruction() string {
	return schemaInstruction
}

// RegisterPrompts registers the instruction prompt with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         PromptKey,
		Text:        schemaInstruction,
		Description: "System turn prepended in schema_instruction mode - embeds the JSON Schema and asks for a bare JSON object",
	})
}
