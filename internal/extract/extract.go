// Package extract turns a text-generation backend into a typed, schema-checked
// call. One Extract sends exactly one request, validates the reply against the
// schema and returns either the typed value or a *Failure.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/llmshape/internal/prompts"
	"github.com/jackzampolin/llmshape/internal/prompts/instruction"
	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/schema"
)

// DefaultTimeout bounds a request when neither the Request nor the Config sets one.
const DefaultTimeout = 30 * time.Second

// Mode selects how the schema reaches the backend.
type Mode string

const (
	// ModeSchemaParameter sends the JSON Schema as a request parameter
	// (Ollama "format", OpenAI response_format json_schema).
	ModeSchemaParameter Mode = "schema_parameter"
	// ModeSchemaInstruction sets the backend's generic JSON flag and prepends a
	// system turn that carries the schema.
	ModeSchemaInstruction Mode = "schema_instruction"
)

// ParseMode converts a config string into a Mode. Empty means ModeSchemaParameter.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case "", ModeSchemaParameter:
		return ModeSchemaParameter, nil
	case ModeSchemaInstruction:
		return ModeSchemaInstruction, nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q (want %s or %s)", s, ModeSchemaParameter, ModeSchemaInstruction)
	}
}

// Config configures an Extractor.
type Config struct {
	// Backend is required.
	Backend providers.Backend
	// BackendName labels logs and metrics; defaults to Backend.Name().
	BackendName string

	Mode        Mode
	Model       string        // Default model; a Request may override it
	Temperature *float64      // Default temperature; nil leaves the backend default
	Timeout     time.Duration // Default: 30s
	// Strict asks OpenAI-compatible backends for strict json_schema adherence.
	Strict bool

	// Prompts resolves the schema instruction; nil uses the embedded text.
	Prompts *prompts.Resolver
	// Observer receives one callback per Extract; optional.
	Observer Observer
	Logger   *slog.Logger
}

// Extractor is immutable after New and safe for concurrent use.
type Extractor struct {
	backend     providers.Backend
	backendName string
	mode        Mode
	model       string
	temperature *float64
	timeout     time.Duration
	strict      bool
	prompts     *prompts.Resolver
	observer    Observer
	logger      *slog.Logger
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Backend == nil {
		return nil, errors.New("extract: backend is required")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	if cfg.BackendName == "" {
		cfg.BackendName = cfg.Backend.Name()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var temperature *float64
	if cfg.Temperature != nil {
		t := *cfg.Temperature
		temperature = &t
	}

	return &Extractor{
		backend:     cfg.Backend,
		backendName: cfg.BackendName,
		mode:        mode,
		model:       cfg.Model,
		temperature: temperature,
		timeout:     cfg.Timeout,
		strict:      cfg.Strict,
		prompts:     cfg.Prompts,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}, nil
}

// Mode returns the configured mode.
func (e *Extractor) Mode() Mode {
	return e.mode
}

// BackendName returns the label used for logs and metrics.
func (e *Extractor) BackendName() string {
	return e.backendName
}

// Request is one extraction: a schema plus the conversation to send.
type Request struct {
	Schema *schema.Schema
	Turns  []providers.Message

	// Optional overrides of the Extractor defaults.
	Temperature *float64
	Model       string
	Timeout     time.Duration
}

// NewRequest builds a request with a single user turn.
func NewRequest(s *schema.Schema, user string) *Request {
	return &Request{
		Schema: s,
		Turns:  []providers.Message{{Role: providers.RoleUser, Content: user}},
	}
}

// WithSystem prepends a system turn.
func (r *Request) WithSystem(text string) *Request {
	r.Turns = append([]providers.Message{{Role: providers.RoleSystem, Content: text}}, r.Turns...)
	return r
}

// Result is a successful extraction.
type Result[T any] struct {
	Value T `json:"value" yaml:"value"`
	// Document is the validated tree; absent optionals hold schema.Missing.
	Document map[string]any           `json:"document" yaml:"document"`
	Raw      *providers.RawCompletion `json:"raw,omitempty" yaml:"raw,omitempty"`
	Mode     Mode                     `json:"mode" yaml:"mode"`
	Prompt   *prompts.ResolvedPrompt  `json:"-" yaml:"-"` // Set in ModeSchemaInstruction
	Duration time.Duration            `json:"duration" yaml:"duration"`
}

// Outcome describes a finished extraction for observers and history, whether
// it succeeded or not.
type Outcome struct {
	RequestID   string
	Backend     string
	Model       string
	Mode        Mode
	Schema      string
	Temperature *float64
	Duration    time.Duration
	Raw         *providers.RawCompletion // nil when no response arrived
	Prompt      *prompts.ResolvedPrompt  // nil in ModeSchemaParameter
	Err         error
}

// Extract runs req and decodes the validated document into T.
func Extract[T any](ctx context.Context, ex *Extractor, req *Request) (*Result[T], error) {
	out, err := ex.run(ctx, req, func(doc map[string]any) (any, error) {
		var value T
		if err := decodeInto(doc, &value); err != nil {
			return nil, err
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return &Result[T]{
		Value:    out.value.(T),
		Document: out.doc,
		Raw:      out.raw,
		Mode:     ex.mode,
		Prompt:   out.prompt,
		Duration: out.duration,
	}, nil
}

// ExtractDocument runs req and returns the validated document untyped.
func (e *Extractor) ExtractDocument(ctx context.Context, req *Request) (*Result[map[string]any], error) {
	out, err := e.run(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return &Result[map[string]any]{
		Value:    out.doc,
		Document: out.doc,
		Raw:      out.raw,
		Mode:     e.mode,
		Prompt:   out.prompt,
		Duration: out.duration,
	}, nil
}

type runOutput struct {
	doc      map[string]any
	value    any
	raw      *providers.RawCompletion
	prompt   *prompts.ResolvedPrompt
	duration time.Duration
}

func (e *Extractor) run(ctx context.Context, req *Request, build func(map[string]any) (any, error)) (*runOutput, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	completion, resolved, err := e.buildCompletion(req)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := Outcome{
		RequestID:   completion.RequestID,
		Backend:     e.backendName,
		Model:       completion.Model,
		Mode:        e.mode,
		Schema:      req.Schema.Name,
		Temperature: completion.Temperature,
		Prompt:      resolved,
	}
	start := time.Now()
	finish := func(err error) {
		outcome.Duration = time.Since(start)
		outcome.Err = err
		if err != nil {
			e.logFailure(outcome)
		} else {
			e.logger.Debug("extraction succeeded",
				"request_id", outcome.RequestID,
				"backend", outcome.Backend,
				"mode", outcome.Mode,
				"duration", outcome.Duration)
		}
		if e.observer != nil {
			e.observer.ObserveExtraction(outcome)
		}
	}

	e.logger.Debug("sending extraction request",
		"request_id", completion.RequestID,
		"backend", e.backendName,
		"mode", e.mode,
		"schema", req.Schema.Name,
		"turns", len(completion.Messages))

	raw, err := e.backend.Complete(ctx, completion)
	if err != nil {
		failure := classifyBackendError(err, ctx.Err())
		finish(failure)
		return nil, failure
	}
	if raw == nil {
		failure := noCompletionFailure()
		finish(failure)
		return nil, failure
	}
	outcome.Raw = raw

	if raw.Refusal != "" && strings.TrimSpace(raw.Content) == "" && len(raw.Parsed) == 0 {
		failure := refusalFailure(raw)
		finish(failure)
		return nil, failure
	}

	text := raw.Content
	if len(raw.Parsed) > 0 {
		text = string(raw.Parsed)
	}
	parsed, failure := parseContent(text)
	if failure != nil {
		finish(failure)
		return nil, failure
	}

	doc, err := req.Schema.Validate(parsed)
	if err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		failure := validationFailure(verr)
		finish(failure)
		return nil, failure
	}

	out := &runOutput{doc: doc, raw: raw, prompt: resolved}
	if build != nil {
		value, err := build(doc)
		if err != nil {
			failure := typeFailure(err)
			finish(failure)
			return nil, failure
		}
		out.value = value
	}

	finish(nil)
	out.duration = outcome.Duration
	return out, nil
}

// buildCompletion serializes the schema per mode and assembles the backend request.
func (e *Extractor) buildCompletion(req *Request) (*providers.CompletionRequest, *prompts.ResolvedPrompt, error) {
	schemaDoc, err := req.Schema.JSONSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	completion := &providers.CompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		RequestID:   uuid.New().String(),
	}
	if completion.Model == "" {
		completion.Model = e.model
	}
	if completion.Temperature == nil {
		completion.Temperature = e.temperature
	}

	var resolved *prompts.ResolvedPrompt
	switch e.mode {
	case ModeSchemaInstruction:
		var indented bytes.Buffer
		if err := json.Indent(&indented, schemaDoc, "", "  "); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		data := instruction.Data{
			Name:        req.Schema.Name,
			Description: req.Schema.Description,
			Schema:      indented.String(),
		}
		var system string
		system, resolved, err = e.renderInstruction(data)
		if err != nil {
			return nil, nil, err
		}
		completion.Messages = append([]providers.Message{{Role: providers.RoleSystem, Content: system}}, req.Turns...)
		completion.ResponseFormat = &providers.ResponseFormat{Kind: providers.FormatJSON}
	default:
		completion.Messages = append([]providers.Message(nil), req.Turns...)
		completion.ResponseFormat = &providers.ResponseFormat{
			Kind:   providers.FormatJSONSchema,
			Name:   req.Schema.Name,
			Schema: schemaDoc,
			Strict: e.strict,
		}
	}

	return completion, resolved, nil
}

func (e *Extractor) renderInstruction(data instruction.Data) (string, *prompts.ResolvedPrompt, error) {
	if e.prompts != nil {
		text, resolved, err := e.prompts.Render(instruction.PromptKey, data)
		if err != nil {
			return "", nil, fmt.Errorf("schema instruction: %w", err)
		}
		return text, resolved, nil
	}
	text, err := prompts.Render(instruction.PromptKey, instruction.SchemaInstruction(), data)
	if err != nil {
		return "", nil, fmt.Errorf("schema instruction: %w", err)
	}
	return text, &prompts.ResolvedPrompt{
		Key:  instruction.PromptKey,
		Text: instruction.SchemaInstruction(),
		Hash: prompts.HashText(instruction.SchemaInstruction()),
	}, nil
}

func (e *Extractor) logFailure(o Outcome) {
	f, ok := AsFailure(o.Err)
	if !ok {
		e.logger.Warn("extraction failed", "request_id", o.RequestID, "backend", o.Backend, "error", o.Err)
		return
	}
	attrs := []any{
		"request_id", o.RequestID,
		"backend", o.Backend,
		"mode", o.Mode,
		"kind", f.Kind,
		"retryable", f.Retryable,
		"duration", o.Duration,
	}
	switch f.Kind {
	case KindBackend:
		attrs = append(attrs, "status", f.StatusCode)
	case KindParse:
		attrs = append(attrs, "line", f.Line, "column", f.Column)
	case KindValidation:
		attrs = append(attrs, "path", f.Path, "mismatch", f.Mismatch)
	}
	e.logger.Warn("extraction failed", attrs...)
}

// checkRequest enforces the request invariants.
func checkRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if req.Schema == nil {
		return fmt.Errorf("%w: schema is required", ErrInvalidRequest)
	}
	if err := req.Schema.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(req.Turns) == 0 {
		return fmt.Errorf("%w: at least one turn is required", ErrInvalidRequest)
	}
	hasUser := false
	for i, turn := range req.Turns {
		switch turn.Role {
		case providers.RoleUser:
			if strings.TrimSpace(turn.Content) != "" {
				hasUser = true
			}
		case providers.RoleSystem, providers.RoleAssistant:
		default:
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidRequest, i, turn.Role)
		}
	}
	if !hasUser {
		return fmt.Errorf("%w: no user turn with content", ErrInvalidRequest)
	}
	return nil
}

// decodeInto re-encodes the validated document and decodes it into dst.
// Missing values encode as null, so pointer fields stay nil.
func decodeInto(doc map[string]any, dst any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// typeFailure reports a validated document that does not fit the target type.
func typeFailure(err error) *Failure {
	f := &Failure{
		Kind:     KindValidation,
		Message:  fmt.Sprintf("value does not fit target type: %v", err),
		Mismatch: schema.MismatchType,
		Err:      err,
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		f.Path = typeErr.Field
	}
	return f
}
