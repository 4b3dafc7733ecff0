package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema renders the schema as a JSON Schema document. Optional fields
// are left out of "required" and accept null, which is how Ollama and
// OpenAI-compatible servers expect nullable properties.
func (s *Schema) JSONSchema() (json.RawMessage, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	doc := fieldDocument(s.Root)
	if s.Name != "" {
		doc["title"] = s.Name
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema %s: %w", s.Name, err)
	}
	return b, nil
}

// Document renders the schema as a generic map, for embedding in request
// bodies that take the schema inline.
func (s *Schema) Document() (map[string]any, error) {
	raw, err := s.JSONSchema()
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fieldDocument(f *Field) map[string]any {
	doc := map[string]any{}
	if f.Optional {
		doc["type"] = []string{string(f.Kind), "null"}
	} else {
		doc["type"] = string(f.Kind)
	}
	if f.Description != "" {
		doc["description"] = f.Description
	}

	switch f.Kind {
	case KindArray:
		doc["items"] = fieldDocument(f.Items)
	case KindObject:
		props := make(map[string]any, len(f.Fields))
		required := make([]string, 0, len(f.Fields))
		for _, child := range f.Fields {
			props[child.Name] = fieldDocument(child)
			if !child.Optional {
				required = append(required, child.Name)
			}
		}
		doc["properties"] = props
		doc["required"] = required
	}
	return doc
}

// Compile compiles the rendered document with a JSON Schema validator. It
// proves the serialization is a valid draft 2020-12 schema and gives callers
// a second, standards-based validator.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	raw, err := s.JSONSchema()
	if err != nil {
		return nil, err
	}
	return compileDocument(raw)
}

func compileDocument(raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema document: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema document: %w", err)
	}
	return compiled, nil
}

// FromJSONSchema converts a JSON Schema document into a Schema. The common
// OpenAI wrappers {"name","schema"} and {"json_schema":{"schema"}} are
// unwrapped. Only the subset of keywords a Schema can express is read:
// type, properties, required, items, description, title and nullable.
func FromJSONSchema(raw []byte) (*Schema, error) {
	name, core, err := unwrapDocument(raw)
	if err != nil {
		return nil, err
	}
	if _, err := compileDocument(core); err != nil {
		return nil, err
	}

	var root map[string]any
	if err := json.Unmarshal(core, &root); err != nil {
		return nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	if name == "" {
		name, _ = root["title"].(string)
	}
	if name == "" {
		name = "extraction"
	}

	field, err := fieldFromDocument("", root, "$")
	if err != nil {
		return nil, err
	}
	s := &Schema{Name: name, Root: field}
	s.Description, _ = root["description"].(string)
	field.Optional = false
	field.Description = ""
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func unwrapDocument(raw []byte) (string, []byte, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return "", nil, fmt.Errorf("invalid schema JSON: %w", err)
	}
	name, _ := root["name"].(string)

	if inner, ok := root["schema"].(map[string]any); ok {
		b, err := json.Marshal(inner)
		return name, b, err
	}
	if wrapper, ok := root["json_schema"].(map[string]any); ok {
		if inner, ok := wrapper["schema"].(map[string]any); ok {
			if n, ok := wrapper["name"].(string); ok {
				name = n
			}
			b, err := json.Marshal(inner)
			return name, b, err
		}
	}
	return "", raw, nil
}

func fieldFromDocument(name string, doc map[string]any, path string) (*Field, error) {
	kind, nullable, err := documentKind(doc, path)
	if err != nil {
		return nil, err
	}
	f := &Field{Name: name, Kind: kind, Optional: nullable}
	f.Description, _ = doc["description"].(string)
	if b, ok := doc["nullable"].(bool); ok && b {
		f.Optional = true
	}

	switch kind {
	case KindArray:
		items, ok := doc["items"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: array without items at %s", ErrMalformed, path)
		}
		f.Items, err = fieldFromDocument("", items, path+"[]")
		if err != nil {
			return nil, err
		}
	case KindObject:
		props, _ := doc["properties"].(map[string]any)
		required := map[string]bool{}
		if list, ok := doc["required"].([]any); ok {
			for _, r := range list {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		names := make([]string, 0, len(props))
		for n := range props {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			propDoc, ok := props[n].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: property %s is not a schema", ErrMalformed, joinPath(path, n))
			}
			child, err := fieldFromDocument(n, propDoc, joinPath(path, n))
			if err != nil {
				return nil, err
			}
			if !required[n] {
				child.Optional = true
			}
			f.Fields = append(f.Fields, child)
		}
	}
	return f, nil
}

func documentKind(doc map[string]any, path string) (Kind, bool, error) {
	switch t := doc["type"].(type) {
	case string:
		k := Kind(strings.ToLower(t))
		if !k.Valid() {
			return "", false, fmt.Errorf("%w: unsupported type %q at %s", ErrMalformed, t, path)
		}
		return k, false, nil
	case []any:
		var kind Kind
		nullable := false
		for _, item := range t {
			s, _ := item.(string)
			if s == "null" {
				nullable = true
				continue
			}
			if kind != "" {
				return "", false, fmt.Errorf("%w: union types are not supported at %s", ErrMalformed, path)
			}
			kind = Kind(strings.ToLower(s))
		}
		if !kind.Valid() {
			return "", false, fmt.Errorf("%w: unsupported type %v at %s", ErrMalformed, t, path)
		}
		return kind, nullable, nil
	case nil:
		if _, ok := doc["properties"]; ok {
			return KindObject, false, nil
		}
		if _, ok := doc["items"]; ok {
			return KindArray, false, nil
		}
	}
	return "", false, fmt.Errorf("%w: missing type at %s", ErrMalformed, path)
}
