package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIBackendName     = "openai"
	openAIDefaultBaseURL  = "http://localhost:11434/v1"
	openAIDefaultModel    = "llama3.2:latest"
	openAIDefaultAPIKey   = "ollama"
	openAIDefaultFormatID = "structured_output"
)

var formatNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// OpenAIConfig holds configuration for an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey     string        // Default: "ollama" (any non-empty key works locally)
	BaseURL    string        // Default: http://localhost:11434/v1
	Model      string        // Default: llama3.2:latest
	Timeout    time.Duration // HTTP client timeout; zero leaves it to the context
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIBackend implements Backend using the official OpenAI SDK against any
// OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	model  string
	client openai.Client
}

// NewOpenAIBackend creates a new OpenAI-compatible backend. SDK retries are
// disabled; each Complete call sends exactly one request.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.APIKey == "" {
		cfg.APIKey = openAIDefaultAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIBackend{
		model:  cfg.Model,
		client: client,
	}
}

// Name returns the backend identifier.
func (b *OpenAIBackend) Name() string {
	return OpenAIBackendName
}

// Model returns the configured default model.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// Complete sends one chat completion request.
func (b *OpenAIBackend) Complete(ctx context.Context, req *CompletionRequest) (*RawCompletion, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ResponseFormat != nil {
		format, err := toOpenAIResponseFormat(req.ResponseFormat)
		if err != nil {
			return nil, err
		}
		params.ResponseFormat = format
	}

	completion, err := b.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Request-ID", requestID))
	if err != nil {
		return nil, mapOpenAIError(err)
	}

	raw, err := NormalizeCompletion([]byte(completion.RawJSON()))
	if err != nil {
		return nil, err
	}
	raw.Provider = OpenAIBackendName
	if raw.RequestID == "" {
		raw.RequestID = requestID
	}
	if raw.ModelUsed == "" {
		raw.ModelUsed = model
	}
	raw.ExecutionTime = time.Since(start)
	return raw, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAIResponseFormat(rf *ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	switch rf.Kind {
	case FormatJSONSchema:
		var schemaDoc map[string]any
		if err := json.Unmarshal(rf.Schema, &schemaDoc); err != nil {
			return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("invalid response schema: %w", err)
		}
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   formatName(rf.Name),
					Schema: schemaDoc,
					Strict: openai.Bool(rf.Strict),
				},
			},
		}, nil
	case FormatJSON:
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}, nil
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, fmt.Errorf("unsupported response format: %q", rf.Kind)
	}
}

// formatName coerces a schema name into the [a-zA-Z0-9_-] alphabet the API
// accepts for json_schema names.
func formatName(name string) string {
	name = formatNamePattern.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		return openAIDefaultFormatID
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// mapOpenAIError converts SDK errors into StatusError or TransportError.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		statusErr := &StatusError{
			Provider:   OpenAIBackendName,
			StatusCode: apiErr.StatusCode,
			Body:       apiErr.RawJSON(),
		}
		if statusErr.Body == "" {
			statusErr.Body = apiErr.Message
		}
		if apiErr.Response != nil {
			statusErr.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return statusErr
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}
	return &TransportError{Provider: OpenAIBackendName, Err: err}
}

var _ Backend = (*OpenAIBackend)(nil)
