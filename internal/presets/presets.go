// Package presets holds the built-in extraction workloads: a city list
// generated from a one-line prompt and pet records pulled from free text.
package presets

import (
	"fmt"
	"sort"

	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/schema"
)

// Preset pairs a schema with the user prompt that drives it.
type Preset struct {
	Name        string
	Description string
	Schema      *schema.Schema
	PromptKey   string
	prompt      string
}

var all = map[string]*Preset{
	Cities.Name: Cities,
	Pets.Name:   Pets,
}

// Get returns a preset by name.
func Get(name string) (*Preset, error) {
	p, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	return p, nil
}

// Names returns the preset names, sorted.
func Names() []string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterPrompts registers every preset's user prompt with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	for _, name := range Names() {
		p := all[name]
		r.Register(prompts.EmbeddedPrompt{
			Key:         p.PromptKey,
			Text:        p.prompt,
			Description: p.Description,
		})
	}
}

// UserPrompt renders the preset's user turn. A nil resolver uses the embedded text.
func (p *Preset) UserPrompt(r *prompts.Resolver, data any) (string, *prompts.ResolvedPrompt, error) {
	if r != nil {
		return r.Render(p.PromptKey, data)
	}
	text, err := prompts.Render(p.PromptKey, p.prompt, data)
	if err != nil {
		return "", nil, err
	}
	return text, &prompts.ResolvedPrompt{Key: p.PromptKey, Text: p.prompt, Hash: prompts.HashText(p.prompt)}, nil
}
