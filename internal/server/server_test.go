package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/server/endpoints"
)

// newTestServer builds a server with a mock backend registered as the default
// and services initialized, without binding a port.
func newTestServer(t *testing.T, historyPath string) (*Server, *providers.MockBackend) {
	t.Helper()

	srv, err := New(Config{HistoryPath: historyPath})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mock := providers.NewMockBackend()
	srv.Registry().Register("mock", mock)
	srv.Registry().SetDefault("mock")

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.init(ctx); err != nil {
		cancel()
		t.Fatalf("init() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = srv.shutdown()
	})
	return srv, mock
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_Defaults(t *testing.T) {
	srv, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8080", srv.Addr())
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	if srv.LLMCallStore() != nil {
		t.Error("LLMCallStore() should be nil before Start")
	}
}

func TestRequireInit_BeforeStart(t *testing.T) {
	srv, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := doJSON(t, srv.Handler(), "GET", "/api/prompts", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	// Health does not require init
	rec = doJSON(t, srv.Handler(), "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestExtractEndpoint(t *testing.T) {
	srv, mock := newTestServer(t, "")
	h := srv.Handler()

	t.Run("registered schema", func(t *testing.T) {
		mock.ResponseText = `{"cities":[{"name":"Kyoto","country":"Japan"}]}`

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     "List one city in Japan",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp endpoints.ExtractResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Backend != "mock" {
			t.Errorf("Backend = %q, want mock", resp.Backend)
		}
		if resp.Mode != string(extract.ModeSchemaParameter) {
			t.Errorf("Mode = %q, want %s", resp.Mode, extract.ModeSchemaParameter)
		}
		cities, ok := resp.Document["cities"].([]any)
		if !ok || len(cities) != 1 {
			t.Fatalf("unexpected document: %v", resp.Document)
		}
	})

	t.Run("inline json schema", func(t *testing.T) {
		mock.ResponseText = `{"name":"Ada","born":1815}`

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			Schema: json.RawMessage(`{"title":"person","type":"object","properties":{"name":{"type":"string"},"born":{"type":"integer"}},"required":["name","born"]}`),
			Prompt: "Ada Lovelace, born 1815",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("validation failure is 422 with failure details", func(t *testing.T) {
		mock.ResponseText = `{"cities":[{"name":"Kyoto"}]}`

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     "List one city",
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422; body = %s", rec.Code, rec.Body.String())
		}

		var resp api.ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Failure == nil {
			t.Fatal("expected failure details")
		}
		if resp.Failure.Kind != extract.KindValidation {
			t.Errorf("Kind = %q, want validation", resp.Failure.Kind)
		}
	})

	t.Run("parse failure is 422", func(t *testing.T) {
		mock.ResponseText = `I cannot help with that`

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     "List one city",
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("backend status is 502", func(t *testing.T) {
		mock.StatusCode = http.StatusInternalServerError
		mock.ResponseText = "model crashed"
		defer func() { mock.StatusCode = 0 }()

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     "List one city",
		})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("bad input is 400", func(t *testing.T) {
		cases := []struct {
			name string
			req  endpoints.ExtractRequest
		}{
			{"no schema", endpoints.ExtractRequest{Prompt: "hi"}},
			{"both schemas", endpoints.ExtractRequest{SchemaName: "city_list", Schema: json.RawMessage(`{"type":"object"}`), Prompt: "hi"}},
			{"unknown schema", endpoints.ExtractRequest{SchemaName: "nope", Prompt: "hi"}},
			{"no user turn", endpoints.ExtractRequest{SchemaName: "city_list", System: "be terse"}},
			{"unknown mode", endpoints.ExtractRequest{SchemaName: "city_list", Prompt: "hi", Mode: "telepathy"}},
			{"unknown backend", endpoints.ExtractRequest{SchemaName: "city_list", Prompt: "hi", Backend: "missing"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := doJSON(t, h, "POST", "/api/extract", tc.req)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
				}
			})
		}
	})

	t.Run("oversized body is 413", func(t *testing.T) {
		calls := mock.RequestCount()
		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     strings.Repeat("x", endpoints.MaxExtractRequestBytes),
		})
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413; body = %s", rec.Code, rec.Body.String())
		}
		if mock.RequestCount() != calls {
			t.Error("backend should not be called for an oversized body")
		}
	})

	t.Run("schema instruction mode adds a system turn", func(t *testing.T) {
		mock.ResponseText = `{"cities":[]}`

		rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
			SchemaName: "city_list",
			Prompt:     "List no cities",
			Mode:       string(extract.ModeSchemaInstruction),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		last := mock.LastRequest()
		if last == nil || len(last.Messages) < 2 || last.Messages[0].Role != providers.RoleSystem {
			t.Errorf("expected leading system turn, got %+v", last)
		}
	})
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv.Handler(), "GET", "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp endpoints.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Backends.Default != "mock" {
		t.Errorf("default backend = %q, want mock", resp.Backends.Default)
	}
	if resp.History.Enabled {
		t.Error("history should be disabled without a path")
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, path := range []string{"/api/llmcalls", "/api/llmcalls/counts", "/api/llmcalls/stats"} {
		rec := doJSON(t, srv.Handler(), "GET", path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestPromptEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/api/prompts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list endpoints.PromptsListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Prompts) == 0 {
		t.Fatal("expected registered prompts")
	}

	key := list.Prompts[0].Key
	rec = doJSON(t, h, "GET", "/api/prompts/"+key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get %s status = %d", key, rec.Code)
	}

	rec = doJSON(t, h, "GET", "/api/prompts/does.not.exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing prompt status = %d, want 404", rec.Code)
	}
}

func TestSchemasEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv.Handler(), "GET", "/api/schemas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp endpoints.SchemasResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := map[string]bool{}
	for _, s := range resp.Schemas {
		names[s.Name] = true
	}
	if !names["city_list"] {
		t.Errorf("expected city_list in %v", names)
	}
}

func TestSwaggerServed(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv.Handler(), "GET", "/swagger.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc.Paths["/api/extract"]; !ok {
		t.Error("expected /api/extract in served document")
	}
}

func TestHistoryRecording(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.db")
	srv, mock := newTestServer(t, historyPath)
	h := srv.Handler()

	mock.ResponseText = `{"cities":[{"name":"Oslo","country":"Norway"}]}`
	rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
		SchemaName: "city_list",
		Prompt:     "List one city in Norway",
		PromptKey:  "test.cities",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("extract status = %d, body = %s", rec.Code, rec.Body.String())
	}

	mock.ResponseText = `not json`
	rec = doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
		SchemaName: "city_list",
		Prompt:     "List one city in Norway",
		PromptKey:  "test.cities",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("extract status = %d, want 422", rec.Code)
	}

	if err := srv.Sink().Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls?prompt_key=test.cities", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var list endpoints.LLMCallsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 2 {
		t.Fatalf("Total = %d, want 2", list.Total)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls?success=false", nil)
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Calls[0].FailureKind != string(extract.KindParse) {
		t.Errorf("expected one parse failure, got %+v", list.Calls)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls/"+list.Calls[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	rec = doJSON(t, h, "GET", "/api/llmcalls/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing call status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls/counts", nil)
	var counts endpoints.LLMCallCountsResponse
	if err := json.NewDecoder(rec.Body).Decode(&counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts.Counts["test.cities"] != 2 {
		t.Errorf("counts = %v, want test.cities=2", counts.Counts)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls/stats?group_by=backend", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var stats endpoints.LLMCallStatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	mockStats := stats.Groups["mock"]
	if mockStats == nil || mockStats.Count != 2 || mockStats.SuccessCount != 1 {
		t.Errorf("unexpected stats: %+v", mockStats)
	}

	rec = doJSON(t, h, "GET", "/api/llmcalls/stats?group_by=color", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad group_by status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, h, "GET", "/api/llmcalls?after=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad after status = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, mock := newTestServer(t, "")
	h := srv.Handler()

	mock.ResponseText = `{"cities":[]}`
	rec := doJSON(t, h, "POST", "/api/extract", endpoints.ExtractRequest{
		SchemaName: "city_list",
		Prompt:     "List no cities",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("extract status = %d", rec.Code)
	}

	rec = doJSON(t, h, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"llmshape_extractions_total", "llmshape_extraction_duration_seconds"} {
		if !bytes.Contains([]byte(body), []byte(want)) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
