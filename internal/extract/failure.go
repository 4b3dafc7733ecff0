package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/llmshape/internal/providers"
	"github.com/jackzampolin/llmshape/internal/schema"
)

// ErrInvalidRequest marks programmer errors: a malformed schema, missing user
// content or an unknown role. Nothing is sent when it is returned.
var ErrInvalidRequest = errors.New("invalid extraction request")

// Kind classifies an extraction failure.
type Kind string

const (
	// KindConnectivity covers dial and transport errors, timeouts and expired deadlines.
	KindConnectivity Kind = "connectivity"
	// KindBackend covers non-success statuses, refusals and unrecognized bodies.
	KindBackend Kind = "backend"
	// KindParse means the content was not JSON, even after repair.
	KindParse Kind = "parse"
	// KindValidation means the JSON did not conform to the schema.
	KindValidation Kind = "validation"
)

// Failure is the error returned for every runtime extraction failure.
type Failure struct {
	Kind      Kind   `json:"kind" yaml:"kind"`
	Retryable bool   `json:"retryable" yaml:"retryable"`
	Message   string `json:"message" yaml:"message"`

	// Backend failures
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Body       string        `json:"body,omitempty" yaml:"body,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty" yaml:"retry_after,omitempty"`

	// Parse failures
	Raw    string `json:"raw,omitempty" yaml:"raw,omitempty"`
	Offset int64  `json:"offset,omitempty" yaml:"offset,omitempty"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`

	// Validation failures
	Path         string          `json:"path,omitempty" yaml:"path,omitempty"`
	Mismatch     schema.Mismatch `json:"mismatch,omitempty" yaml:"mismatch,omitempty"`
	ElementCause schema.Mismatch `json:"element_cause,omitempty" yaml:"element_cause,omitempty"`
	Index        *int            `json:"index,omitempty" yaml:"index,omitempty"`

	Err error `json:"-" yaml:"-"`
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindBackend:
		if f.StatusCode != 0 {
			return fmt.Sprintf("%s failure (status %d): %s", f.Kind, f.StatusCode, f.Message)
		}
	case KindParse:
		return fmt.Sprintf("%s failure at line %d column %d: %s", f.Kind, f.Line, f.Column, f.Message)
	case KindValidation:
		return fmt.Sprintf("%s failure at %s: %s", f.Kind, displayPath(f.Path), f.Message)
	}
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns the *Failure in err's chain, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsRetryable reports whether err is a Failure an outer caller may retry
// without changing the request.
func IsRetryable(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Retryable
}

// classifyBackendError turns an error from Backend.Complete into a Failure.
// ctxErr is the extraction context's error after the call returned.
func classifyBackendError(err error, ctxErr error) *Failure {
	var statusErr *providers.StatusError
	if errors.As(err, &statusErr) {
		return &Failure{
			Kind:       KindBackend,
			Retryable:  statusErr.Transient(),
			Message:    fmt.Sprintf("%s returned status %d", statusErr.Provider, statusErr.StatusCode),
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
			RetryAfter: statusErr.RetryAfter,
			Err:        err,
		}
	}

	if errors.Is(err, providers.ErrUnrecognizedResponse) || errors.Is(err, providers.ErrResponseTooLarge) {
		return &Failure{
			Kind:    KindBackend,
			Message: err.Error(),
			Err:     err,
		}
	}

	if ctxErr != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		msg := "request cancelled"
		if errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			msg = "deadline exceeded waiting for backend"
		}
		return &Failure{
			Kind:      KindConnectivity,
			Retryable: true,
			Message:   msg,
			Err:       err,
		}
	}

	var transportErr *providers.TransportError
	if errors.As(err, &transportErr) {
		msg := "backend unreachable"
		if transportErr.Timeout() {
			msg = "backend timed out"
		}
		return &Failure{
			Kind:      KindConnectivity,
			Retryable: true,
			Message:   fmt.Sprintf("%s: %v", msg, transportErr.Err),
			Err:       err,
		}
	}

	// Anything else escaped the backend's own classification; treat it as a
	// transport problem so it stays a value the caller can inspect.
	return &Failure{
		Kind:      KindConnectivity,
		Retryable: true,
		Message:   err.Error(),
		Err:       err,
	}
}

func noCompletionFailure() *Failure {
	return &Failure{
		Kind:    KindBackend,
		Message: "backend returned no completion",
	}
}

func refusalFailure(raw *providers.RawCompletion) *Failure {
	return &Failure{
		Kind:       KindBackend,
		Message:    "model refused: " + raw.Refusal,
		StatusCode: raw.StatusCode,
		Body:       raw.Refusal,
	}
}

func validationFailure(verr *schema.ValidationError) *Failure {
	f := &Failure{
		Kind:     KindValidation,
		Message:  verr.Error(),
		Path:     verr.Path,
		Mismatch: verr.Mismatch,
		Err:      verr,
	}
	if verr.Mismatch == schema.MismatchElement {
		f.ElementCause = verr.Cause
		index := verr.Index
		f.Index = &index
	}
	return f
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
