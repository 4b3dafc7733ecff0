package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const MockBackendName = "mock"

// MockBackend is a scriptable Backend for tests and dry runs.
type MockBackend struct {
	// Configurable behavior
	Latency      time.Duration
	ResponseText string          // Returned as message content
	ResponseJSON json.RawMessage // Returned as a pre-parsed value when set
	ResponseBody []byte          // Raw success body run through NormalizeCompletion
	StatusCode   int             // Non-2xx returns a *StatusError with ResponseText as body
	Err          error           // Returned as-is when set

	// Handler overrides everything above when set.
	Handler func(ctx context.Context, req *CompletionRequest) (*RawCompletion, error)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	lastRequest  *CompletionRequest
}

// NewMockBackend creates a new mock backend with sensible defaults.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Latency:      time.Millisecond,
		ResponseText: "{}",
	}
}

// Name returns the backend identifier.
func (m *MockBackend) Name() string {
	return MockBackendName
}

// Complete returns the scripted response.
func (m *MockBackend) Complete(ctx context.Context, req *CompletionRequest) (*RawCompletion, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	m.mu.Lock()
	copied := *req
	m.lastRequest = &copied
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(ctx, req)
	}

	// Simulate latency
	select {
	case <-time.After(m.Latency):
	case <-ctx.Done():
		return nil, &TransportError{Provider: MockBackendName, Err: ctx.Err()}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	if m.StatusCode != 0 && (m.StatusCode < 200 || m.StatusCode >= 300) {
		return nil, &StatusError{Provider: MockBackendName, StatusCode: m.StatusCode, Body: m.ResponseText}
	}

	var raw *RawCompletion
	if len(m.ResponseBody) > 0 {
		var err error
		raw, err = NormalizeCompletion(m.ResponseBody)
		if err != nil {
			return nil, err
		}
	} else {
		raw = &RawCompletion{
			Content:    m.ResponseText,
			StatusCode: http.StatusOK,
			Success:    true,
		}
		if len(m.ResponseJSON) > 0 {
			raw.Parsed = m.ResponseJSON
		}
	}

	raw.Provider = MockBackendName
	raw.ModelUsed = req.Model
	raw.RequestID = fmt.Sprintf("mock-%d", count)
	raw.ExecutionTime = time.Since(start)

	// Simulate token counting
	for _, msg := range req.Messages {
		raw.PromptTokens += len(msg.Content) / 4 // Rough estimate
	}
	raw.CompletionTokens = len(raw.Content) / 4
	raw.TotalTokens = raw.PromptTokens + raw.CompletionTokens

	return raw, nil
}

// RequestCount returns the number of requests made.
func (m *MockBackend) RequestCount() int64 {
	return m.requestCount.Load()
}

// LastRequest returns a copy of the most recent request, or nil.
func (m *MockBackend) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Reset resets the request counter.
func (m *MockBackend) Reset() {
	m.requestCount.Store(0)
	m.mu.Lock()
	m.lastRequest = nil
	m.mu.Unlock()
}

// Verify interface
var _ Backend = (*MockBackend)(nil)
