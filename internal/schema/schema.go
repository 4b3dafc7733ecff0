// Package schema describes the expected shape of a structured extraction result.
//
// A Schema is a tree of fields rooted at an object. Each field has a name, a
// primitive kind, optionality, and (for arrays and objects) child fields.
// Schemas are built once and never mutated; every builder returns a fresh value.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the primitive kind of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInteger, KindNumber, KindBoolean, KindArray, KindObject:
		return true
	}
	return false
}

// ErrMalformed is returned by Check for schemas that cannot be used.
var ErrMalformed = errors.New("malformed schema")

// Field is one node of a schema tree.
type Field struct {
	Name        string
	Kind        Kind
	Optional    bool
	Description string

	// Items is the element schema for arrays.
	Items *Field
	// Fields are the declared properties of objects, in declaration order.
	Fields []*Field
}

// Schema is a named root object shape.
type Schema struct {
	Name        string
	Description string
	Root        *Field
}

// New creates a schema whose root object declares the given fields.
func New(name string, fields ...*Field) *Schema {
	return &Schema{
		Name: name,
		Root: &Field{Kind: KindObject, Fields: fields},
	}
}

// WithDescription returns a copy of s carrying a description.
func (s *Schema) WithDescription(desc string) *Schema {
	out := *s
	out.Description = desc
	return &out
}

// Str declares a required string field.
func Str(name string) *Field { return &Field{Name: name, Kind: KindString} }

// Int declares a required integer field.
func Int(name string) *Field { return &Field{Name: name, Kind: KindInteger} }

// Num declares a required number field.
func Num(name string) *Field { return &Field{Name: name, Kind: KindNumber} }

// Bool declares a required boolean field.
func Bool(name string) *Field { return &Field{Name: name, Kind: KindBoolean} }

// ArrayOf declares a required array field whose elements match items.
// The element's own name is ignored.
func ArrayOf(name string, items *Field) *Field {
	return &Field{Name: name, Kind: KindArray, Items: items}
}

// Obj declares a required nested object field.
func Obj(name string, fields ...*Field) *Field {
	return &Field{Name: name, Kind: KindObject, Fields: fields}
}

// Opt returns an optional copy of f.
func (f *Field) Opt() *Field {
	out := *f
	out.Optional = true
	return &out
}

// Describe returns a copy of f carrying a description.
func (f *Field) Describe(desc string) *Field {
	out := *f
	out.Description = desc
	return &out
}

// Field returns the declared child field with the given name, or nil.
func (f *Field) Field(name string) *Field {
	for _, child := range f.Fields {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Check verifies the schema is a well-formed tree: the root is an object,
// there are no cycles, every field has a concrete kind, arrays declare an
// element schema and object properties are uniquely named.
func (s *Schema) Check() error {
	if s == nil || s.Root == nil {
		return fmt.Errorf("%w: no root", ErrMalformed)
	}
	if s.Root.Kind != KindObject {
		return fmt.Errorf("%w: root must be an object, got %q", ErrMalformed, s.Root.Kind)
	}
	return checkField(s.Root, "$", make(map[*Field]bool))
}

// MustCheck panics if the schema is malformed. Use it for schemas declared
// in code, where a malformed tree is a programming error.
func MustCheck(s *Schema) *Schema {
	if err := s.Check(); err != nil {
		panic(err)
	}
	return s
}

func checkField(f *Field, path string, onPath map[*Field]bool) error {
	if f == nil {
		return fmt.Errorf("%w: nil field at %s", ErrMalformed, path)
	}
	if onPath[f] {
		return fmt.Errorf("%w: cycle at %s", ErrMalformed, path)
	}
	if !f.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q at %s", ErrMalformed, f.Kind, path)
	}

	onPath[f] = true
	defer delete(onPath, f)

	switch f.Kind {
	case KindArray:
		if f.Items == nil {
			return fmt.Errorf("%w: array without items at %s", ErrMalformed, path)
		}
		return checkField(f.Items, path+"[]", onPath)
	case KindObject:
		seen := make(map[string]bool, len(f.Fields))
		for _, child := range f.Fields {
			if child == nil {
				return fmt.Errorf("%w: nil field at %s", ErrMalformed, path)
			}
			name := strings.TrimSpace(child.Name)
			if name == "" {
				return fmt.Errorf("%w: unnamed field in %s", ErrMalformed, path)
			}
			if seen[name] {
				return fmt.Errorf("%w: duplicate field %q in %s", ErrMalformed, name, path)
			}
			seen[name] = true
			if err := checkField(child, joinPath(path, name), onPath); err != nil {
				return err
			}
		}
	default:
		if f.Items != nil || len(f.Fields) > 0 {
			return fmt.Errorf("%w: %s field at %s declares children", ErrMalformed, f.Kind, path)
		}
	}
	return nil
}

// joinPath appends a property name to a path. The root "$" is dropped so
// paths read like "pets[0].age".
func joinPath(path, name string) string {
	if path == "" || path == "$" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	if path == "$" {
		path = ""
	}
	return fmt.Sprintf("%s[%d]", path, i)
}
