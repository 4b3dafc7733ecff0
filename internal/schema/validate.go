package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Mismatch classifies why a value failed validation.
type Mismatch string

const (
	// MismatchType means the value had the wrong kind.
	MismatchType Mismatch = "type_mismatch"
	// MismatchMissing means a required field was absent.
	MismatchMissing Mismatch = "missing_required"
	// MismatchElement means an array element failed; Cause holds its reason.
	MismatchElement Mismatch = "array_element"
)

// ValidationError reports the first place a document diverged from its schema.
type ValidationError struct {
	// Path locates the failing value, e.g. "pets[0].age".
	Path     string   `json:"path"`
	Mismatch Mismatch `json:"mismatch"`
	// Cause is the underlying mismatch of an array element failure.
	Cause Mismatch `json:"cause,omitempty"`
	// Index is the position of the failing array element, or -1.
	Index    int    `json:"index"`
	Expected Kind   `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.reason() {
	case MismatchMissing:
		if e.Mismatch == MismatchElement {
			return fmt.Sprintf("array element %d: missing required field %s", e.Index, e.Path)
		}
		return fmt.Sprintf("missing required field %s", e.Path)
	default:
		if e.Mismatch == MismatchElement {
			return fmt.Sprintf("array element %d: %s: expected %s, got %s", e.Index, e.Path, e.Expected, e.Got)
		}
		return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Got)
	}
}

func (e *ValidationError) reason() Mismatch {
	if e.Mismatch == MismatchElement {
		return e.Cause
	}
	return e.Mismatch
}

type missing struct{}

// Missing marks an optional field that was absent (or null) in the document.
// It encodes as null so typed pointer fields stay nil.
var Missing = missing{}

func (missing) String() string               { return "<missing>" }
func (missing) MarshalJSON() ([]byte, error) { return []byte("null"), nil }
func (missing) MarshalYAML() (any, error)    { return nil, nil }

// IsMissing reports whether v is the Missing marker.
func IsMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

// Decode parses JSON text keeping numbers exact so integers can be told
// apart from fractional values. Invalid input, including trailing data after
// the first value, returns a *json.SyntaxError carrying the byte offset.
func Decode(data []byte) (any, error) {
	if !json.Valid(data) {
		var scratch any
		if err := json.Unmarshal(data, &scratch); err != nil {
			return nil, err
		}
		return nil, &json.SyntaxError{Offset: int64(len(data))}
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks doc against the schema and returns a normalized copy:
// undeclared properties are dropped, absent optionals hold Missing, integers
// are int64 and numbers float64. The first failure is returned as a
// *ValidationError.
func (s *Schema) Validate(doc any) (map[string]any, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	out, err := validateField(s.Root, doc, "$")
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func validateField(f *Field, v any, path string) (any, error) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(f, v, path)
		}
		return s, nil

	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(f, v, path)
		}
		return b, nil

	case KindInteger:
		n, ok := asInteger(v)
		if !ok {
			return nil, typeError(f, v, path)
		}
		return n, nil

	case KindNumber:
		n, ok := asNumber(v)
		if !ok {
			return nil, typeError(f, v, path)
		}
		return n, nil

	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return nil, typeError(f, v, path)
		}
		out := make([]any, 0, len(items))
		for i, item := range items {
			elemPath := indexPath(path, i)
			if item == nil {
				return nil, elementError(&ValidationError{
					Path: elemPath, Mismatch: MismatchType, Index: -1,
					Expected: f.Items.Kind, Got: "null",
				}, i)
			}
			val, err := validateField(f.Items, item, elemPath)
			if err != nil {
				var verr *ValidationError
				if errors.As(err, &verr) {
					return nil, elementError(verr, i)
				}
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil

	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, typeError(f, v, path)
		}
		out := make(map[string]any, len(f.Fields))
		for _, child := range f.Fields {
			childPath := joinPath(path, child.Name)
			raw, present := obj[child.Name]
			if !present || raw == nil {
				if child.Optional {
					out[child.Name] = Missing
					continue
				}
				if present {
					return nil, &ValidationError{
						Path: childPath, Mismatch: MismatchType, Index: -1,
						Expected: child.Kind, Got: "null",
					}
				}
				return nil, &ValidationError{
					Path: childPath, Mismatch: MismatchMissing, Index: -1,
					Expected: child.Kind,
				}
			}
			val, err := validateField(child, raw, childPath)
			if err != nil {
				return nil, err
			}
			out[child.Name] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q at %s", ErrMalformed, f.Kind, path)
}

// elementError tags an error with the innermost array index that contains it.
func elementError(err *ValidationError, index int) *ValidationError {
	if err.Mismatch != MismatchElement {
		err.Cause = err.Mismatch
		err.Mismatch = MismatchElement
		err.Index = index
	}
	return err
}

func typeError(f *Field, v any, path string) *ValidationError {
	if path == "$" {
		path = ""
	}
	return &ValidationError{
		Path:     path,
		Mismatch: MismatchType,
		Index:    -1,
		Expected: f.Kind,
		Got:      jsonType(v),
	}
}

func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	case float64:
		return integral(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if f >= 1<<63 || f < -(1<<63) {
		return 0, false
	}
	return int64(f), true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func jsonType(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		if _, ok := asInteger(n); ok {
			return "integer"
		}
		return "number"
	case float64, int, int64:
		if _, ok := asInteger(n); ok {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
