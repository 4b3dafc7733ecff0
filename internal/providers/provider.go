package providers

import (
	"context"
	"encoding/json"
	"time"
)

// Backend is a text-generation service reachable over the network. It sends
// exactly one request per Complete call and never retries on its own.
type Backend interface {
	// Name returns the backend identifier (e.g., "ollama").
	Name() string

	// Complete sends a single generation request and returns the normalized
	// assistant output. Non-success statuses are reported as *StatusError and
	// transport failures as *TransportError.
	Complete(ctx context.Context, req *CompletionRequest) (*RawCompletion, error)
}

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FormatKind selects how the backend is asked to shape its output.
type FormatKind string

const (
	// FormatJSONSchema passes a JSON Schema document as a request parameter.
	FormatJSONSchema FormatKind = "json_schema"
	// FormatJSON only asks for syntactically valid JSON; the shape is
	// described in the prompt.
	FormatJSON FormatKind = "json_object"
)

// ResponseFormat specifies structured output format.
type ResponseFormat struct {
	Kind   FormatKind      `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"` // Set for FormatJSONSchema
	Strict bool            `json:"strict,omitempty"`
}

// CompletionRequest is a single generation request.
type CompletionRequest struct {
	// Required
	Messages []Message `json:"messages"`

	// Model selection (uses backend default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters; nil Temperature leaves the backend default.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	// Structured output
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// RawCompletion is the backend's unparsed output, normalized from whichever
// response shape the backend speaks.
type RawCompletion struct {
	// Content is the assistant message text.
	Content string `json:"content"`
	// Parsed is a structured value the backend parsed itself, if any.
	Parsed json.RawMessage `json:"parsed,omitempty"`
	// Refusal is set when the model declined to answer.
	Refusal string `json:"refusal,omitempty"`

	// Status
	StatusCode int  `json:"status_code"`
	Success    bool `json:"success"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Timing
	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`
	RequestID string `json:"request_id"`
}

// Float returns a pointer to v, for optional request parameters.
func Float(v float64) *float64 {
	return &v
}
