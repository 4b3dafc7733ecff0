package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/extract"
	"github.com/jackzampolin/llmshape/internal/llmcall"
	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/schema"
	"github.com/jackzampolin/llmshape/internal/svcctx"
)

// ExtractRequest is the body of POST /api/extract.
// Exactly one of Schema or SchemaName must be set, and either Prompt or
// Messages must carry a user turn.
type ExtractRequest struct {
	Backend        string              `json:"backend,omitempty"`
	Mode           string              `json:"mode,omitempty"`
	Model          string              `json:"model,omitempty"`
	Schema         json.RawMessage     `json:"schema,omitempty" swaggertype:"object"`
	SchemaName     string              `json:"schema_name,omitempty"`
	System         string              `json:"system,omitempty"`
	Prompt         string              `json:"prompt,omitempty"`
	Messages       []providers.Message `json:"messages,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TimeoutSeconds int                 `json:"timeout_seconds,omitempty"`
	PromptKey      string              `json:"prompt_key,omitempty"`
}

// ExtractResponse is a successful extraction.
type ExtractResponse struct {
	Document     map[string]any `json:"document" yaml:"document"`
	Schema       string         `json:"schema" yaml:"schema"`
	Mode         string         `json:"mode" yaml:"mode"`
	Backend      string         `json:"backend" yaml:"backend"`
	Model        string         `json:"model,omitempty" yaml:"model,omitempty"`
	InputTokens  int            `json:"input_tokens,omitempty" yaml:"input_tokens,omitempty"`
	OutputTokens int            `json:"output_tokens,omitempty" yaml:"output_tokens,omitempty"`
	DurationMs   int64          `json:"duration_ms" yaml:"duration_ms"`
}

// ExtractEndpoint handles POST /api/extract.
type ExtractEndpoint struct{}

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return true }

// MaxExtractRequestBytes caps the size of a POST /api/extract body.
const MaxExtractRequestBytes = 4 << 20

// handler godoc
//
//	@Summary		Run an extraction
//	@Description	Send one schema-constrained request to a backend and return the validated document
//	@Tags			extract
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExtractRequest	true	"Extraction request"
//	@Success		200		{object}	ExtractResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse	"Request body too large"
//	@Failure		422		{object}	ErrorResponse	"Parse or validation failure"
//	@Failure		502		{object}	ErrorResponse	"Backend or connectivity failure"
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxExtractRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s, err := req.resolveSchema()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	services := svcctx.ServicesFrom(r.Context())
	if services == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	ex, err := services.NewExtractor(svcctx.ExtractorOptions{
		Backend:     req.Backend,
		Mode:        req.Mode,
		Model:       req.Model,
		Temperature: req.Temperature,
		Timeout:     time.Duration(req.TimeoutSeconds) * time.Second,
		Record:      req.recordOptions(),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := ex.ExtractDocument(r.Context(), req.extractRequest(s))
	if err != nil {
		writeExtractError(w, err)
		return
	}

	resp := ExtractResponse{
		Document:   result.Document,
		Schema:     s.Name,
		Mode:       string(result.Mode),
		Backend:    ex.BackendName(),
		DurationMs: result.Duration.Milliseconds(),
	}
	if result.Raw != nil {
		resp.Model = result.Raw.ModelUsed
		resp.InputTokens = result.Raw.PromptTokens
		resp.OutputTokens = result.Raw.CompletionTokens
	}
	writeJSON(w, http.StatusOK, resp)
}

func (req *ExtractRequest) resolveSchema() (*schema.Schema, error) {
	switch {
	case len(req.Schema) > 0 && req.SchemaName != "":
		return nil, errors.New("set either schema or schema_name, not both")
	case len(req.Schema) > 0:
		return schema.FromJSONSchema(req.Schema)
	case req.SchemaName != "":
		return schema.Get(req.SchemaName)
	default:
		return nil, errors.New("schema or schema_name is required")
	}
}

func (req *ExtractRequest) extractRequest(s *schema.Schema) *extract.Request {
	turns := make([]providers.Message, 0, len(req.Messages)+2)
	if req.System != "" {
		turns = append(turns, providers.Message{Role: providers.RoleSystem, Content: req.System})
	}
	turns = append(turns, req.Messages...)
	if req.Prompt != "" {
		turns = append(turns, providers.Message{Role: providers.RoleUser, Content: req.Prompt})
	}
	return &extract.Request{Schema: s, Turns: turns}
}

// recordOptions labels the history row. Ad-hoc prompts are hashed so
// identical prompts group together.
func (req *ExtractRequest) recordOptions() llmcall.RecordOptions {
	opts := llmcall.RecordOptions{PromptKey: req.PromptKey}
	if req.Prompt != "" {
		opts.PromptHash = prompts.HashText(req.Prompt)
	}
	return opts
}

// writeExtractError maps extraction errors onto HTTP statuses.
func writeExtractError(w http.ResponseWriter, err error) {
	if errors.Is(err, extract.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f, ok := extract.AsFailure(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, failureStatus(f), ErrorResponse{Error: err.Error(), Failure: f})
}

func failureStatus(f *extract.Failure) int {
	switch f.Kind {
	case extract.KindParse, extract.KindValidation:
		return http.StatusUnprocessableEntity
	case extract.KindConnectivity:
		return http.StatusBadGateway
	case extract.KindBackend:
		if f.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ExtractRequest
	var schemaFile string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run an extraction on the server",
		Example: `  llmshape api extract --schema-name city_list --prompt "List 3 cities in Japan"
  llmshape api extract --schema person.json --prompt "Ada Lovelace, born 1815"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaFile != "" {
				data, err := os.ReadFile(schemaFile)
				if err != nil {
					return fmt.Errorf("failed to read schema: %w", err)
				}
				req.Schema = data
			}
			if req.Prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			if cmd.Flags().Changed("temperature") {
				t, _ := cmd.Flags().GetFloat64("temperature")
				req.Temperature = &t
			}
			req.TimeoutSeconds = int(timeout / time.Second)

			client := api.NewClient(getServerURL())
			var resp ExtractResponse
			if err := client.Post(cmd.Context(), "/api/extract", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "", "Path to a JSON Schema file")
	cmd.Flags().StringVar(&req.SchemaName, "schema-name", "", "Name of a registered schema")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "User prompt")
	cmd.Flags().StringVar(&req.System, "system", "", "Optional system prompt")
	cmd.Flags().StringVar(&req.Backend, "backend", "", "Backend name (default from server config)")
	cmd.Flags().StringVar(&req.Mode, "mode", "", "schema_parameter or schema_instruction")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model override")
	cmd.Flags().StringVar(&req.PromptKey, "prompt-key", "", "Label recorded in call history")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request deadline")
	return cmd
}

// SchemaInfo describes a registered schema.
type SchemaInfo struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	JSONSchema  json.RawMessage `json:"json_schema" yaml:"-" swaggertype:"object"`
}

// SchemasResponse lists registered schemas.
type SchemasResponse struct {
	Schemas []SchemaInfo `json:"schemas" yaml:"schemas"`
}

// ListSchemasEndpoint handles GET /api/schemas.
type ListSchemasEndpoint struct{}

func (e *ListSchemasEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/schemas", e.handler
}

func (e *ListSchemasEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		List schemas
//	@Description	Registered schemas usable as schema_name in /api/extract
//	@Tags			extract
//	@Produce		json
//	@Success		200	{object}	SchemasResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/schemas [get]
func (e *ListSchemasEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := SchemasResponse{Schemas: []SchemaInfo{}}
	for _, name := range schema.Names() {
		s, err := schema.Get(name)
		if err != nil {
			continue
		}
		doc, err := s.JSONSchema()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Schemas = append(resp.Schemas, SchemaInfo{
			Name:        s.Name,
			Description: s.Description,
			JSONSchema:  doc,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListSchemasEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List registered schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SchemasResponse
			if err := client.Get(cmd.Context(), "/api/schemas", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
