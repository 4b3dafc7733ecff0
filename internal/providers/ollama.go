package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	OllamaBackendName     = "ollama"
	ollamaDefaultBaseURL  = "http://localhost:11434"
	ollamaDefaultModel    = "llama3.2:latest"
	ollamaChatPath        = "/api/chat"
	maxResponseBodyBytes  = 8 << 20
	ollamaJSONFormatValue = `"json"`
)

// OllamaConfig holds configuration for the Ollama backend.
type OllamaConfig struct {
	BaseURL    string        // Default: http://localhost:11434
	Model      string        // Default: llama3.2:latest
	Timeout    time.Duration // HTTP client timeout; zero leaves it to the context
	HTTPClient *http.Client  // Optional (tests)
}

// OllamaBackend talks to an Ollama server's native chat endpoint over plain HTTP.
type OllamaBackend struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaBackend creates a new Ollama backend.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ollamaDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &OllamaBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  httpClient,
	}
}

// Name returns the backend identifier.
func (b *OllamaBackend) Name() string {
	return OllamaBackendName
}

// Model returns the configured default model.
func (b *OllamaBackend) Model() string {
	return b.model
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// Complete sends one POST /api/chat request with streaming disabled.
func (b *OllamaBackend) Complete(ctx context.Context, req *CompletionRequest) (*RawCompletion, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	body := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
	}
	if rf := req.ResponseFormat; rf != nil {
		switch rf.Kind {
		case FormatJSONSchema:
			body.Format = rf.Schema
		case FormatJSON:
			body.Format = json.RawMessage(ollamaJSONFormatValue)
		}
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+ollamaChatPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: OllamaBackendName, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes+1))
	if err != nil {
		return nil, &TransportError{Provider: OllamaBackendName, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(respBody) > maxResponseBodyBytes {
		return nil, fmt.Errorf("%s: %w: body exceeds %d bytes", OllamaBackendName, ErrResponseTooLarge, maxResponseBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Provider:   OllamaBackendName,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	raw, err := NormalizeCompletion(respBody)
	if err != nil {
		return nil, err
	}
	raw.StatusCode = resp.StatusCode
	raw.Provider = OllamaBackendName
	raw.RequestID = requestID
	if raw.ModelUsed == "" {
		raw.ModelUsed = model
	}
	raw.ExecutionTime = time.Since(start)
	return raw, nil
}

var _ Backend = (*OllamaBackend)(nil)
