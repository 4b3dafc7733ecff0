package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// completionEnvelope covers both response shapes we accept:
//
//	(a) {"message": {"content": "..."}}                       Ollama /api/chat
//	(b) {"choices": [{"message": {"content", "parsed", "refusal"}}]}  OpenAI-style
type completionEnvelope struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Message *envelopeMessage `json:"message"`
	Choices []struct {
		Message      envelopeMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`

	// Ollama token counters
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`

	Error json.RawMessage `json:"error"`
}

type envelopeMessage struct {
	Content *string         `json:"content"`
	Parsed  json.RawMessage `json:"parsed"`
	Refusal *string         `json:"refusal"`
}

// NormalizeCompletion turns a successful backend response body into a
// RawCompletion. Bodies that match neither accepted shape return an error
// wrapping ErrUnrecognizedResponse.
func NormalizeCompletion(body []byte) (*RawCompletion, error) {
	var env completionEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}

	var msg *envelopeMessage
	switch {
	case env.Message != nil:
		msg = env.Message
	case len(env.Choices) > 0:
		msg = &env.Choices[0].Message
	case len(env.Error) > 0:
		return nil, fmt.Errorf("%w: error payload: %s", ErrUnrecognizedResponse, env.Error)
	default:
		return nil, fmt.Errorf("%w: no message or choices", ErrUnrecognizedResponse)
	}

	raw := &RawCompletion{
		StatusCode: http.StatusOK,
		Success:    true,
		ModelUsed:  env.Model,
		RequestID:  env.ID,
	}
	if msg.Content != nil {
		raw.Content = *msg.Content
	}
	if msg.Refusal != nil {
		raw.Refusal = *msg.Refusal
	}
	if p := bytes.TrimSpace(msg.Parsed); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		raw.Parsed = p
	}

	if env.Usage != nil {
		raw.PromptTokens = env.Usage.PromptTokens
		raw.CompletionTokens = env.Usage.CompletionTokens
		raw.TotalTokens = env.Usage.TotalTokens
	} else {
		raw.PromptTokens = env.PromptEvalCount
		raw.CompletionTokens = env.EvalCount
		raw.TotalTokens = env.PromptEvalCount + env.EvalCount
	}

	return raw, nil
}
