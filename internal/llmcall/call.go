// Package llmcall provides extraction call recording and querying for traceability.
// Every recorded call carries its prompt key and hash, the raw response, and
// the failure classification when the call did not succeed.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/llmshape/internal/extract"
)

// maxResponseBytes caps the stored raw response.
const maxResponseBytes = 64 << 10

// Call represents a recorded extraction call.
type Call struct {
	// Unique identifier
	ID        string `json:"id" yaml:"id"`
	RequestID string `json:"request_id" yaml:"request_id"`

	// Timing
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	LatencyMs int       `json:"latency_ms" yaml:"latency_ms"`

	// Prompt traceability
	PromptKey       string `json:"prompt_key,omitempty" yaml:"prompt_key,omitempty"`
	PromptHash      string `json:"prompt_hash,omitempty" yaml:"prompt_hash,omitempty"`
	InstructionHash string `json:"instruction_hash,omitempty" yaml:"instruction_hash,omitempty"` // Schema instruction prompt, schema_instruction mode only

	// Model info
	Backend     string   `json:"backend" yaml:"backend"`
	Model       string   `json:"model" yaml:"model"`
	Mode        string   `json:"mode" yaml:"mode"`
	Schema      string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`

	// Response
	Response string `json:"response,omitempty" yaml:"response,omitempty"`

	// Status
	Success     bool   `json:"success" yaml:"success"`
	FailureKind string `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	FailurePath string `json:"failure_path,omitempty" yaml:"failure_path,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	// Prompt identification of the user turn (optional)
	PromptKey  string
	PromptHash string
}

// FromOutcome creates a Call from an extraction Outcome.
func FromOutcome(o extract.Outcome, opts RecordOptions) *Call {
	call := &Call{
		ID:         uuid.New().String(),
		RequestID:  o.RequestID,
		Timestamp:  time.Now().UTC(),
		LatencyMs:  int(o.Duration.Milliseconds()),
		PromptKey:  opts.PromptKey,
		PromptHash: opts.PromptHash,
		Backend:    o.Backend,
		Model:      o.Model,
		Mode:       string(o.Mode),
		Schema:     o.Schema,
		Success:    o.Err == nil,
	}

	if o.Temperature != nil {
		t := *o.Temperature
		call.Temperature = &t
	}

	if o.Prompt != nil {
		call.InstructionHash = o.Prompt.Hash
		if call.PromptKey == "" {
			call.PromptKey = o.Prompt.Key
			call.PromptHash = o.Prompt.Hash
		}
	}

	if o.Raw != nil {
		if o.Raw.ModelUsed != "" {
			call.Model = o.Raw.ModelUsed
		}
		call.InputTokens = o.Raw.PromptTokens
		call.OutputTokens = o.Raw.CompletionTokens
		call.Response = o.Raw.Content
		if call.Response == "" && len(o.Raw.Parsed) > 0 {
			call.Response = string(o.Raw.Parsed)
		}
	}

	if o.Err != nil {
		call.Error = o.Err.Error()
		if f, ok := extract.AsFailure(o.Err); ok {
			call.FailureKind = string(f.Kind)
			call.FailurePath = f.Path
			if call.Response == "" {
				call.Response = f.Raw
			}
		}
	}

	if len(call.Response) > maxResponseBytes {
		call.Response = call.Response[:maxResponseBytes]
	}

	return call
}
