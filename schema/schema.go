// Package schema validates catalog documents against JSON Schemas.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Document kinds.
const (
	KindItem       = "item"
	KindCollection = "collection"
)

// ValidationError is returned when a document does not satisfy its schema.
type ValidationError struct {
	Kind string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s failed validation: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	loadOnce sync.Once
	resolved map[string]*jsonschema.Resolved
	loadErr  error
)

func load() {
	resolved = make(map[string]*jsonschema.Resolved, 2)
	for _, kind := range []string{KindItem, KindCollection} {
		b, err := schemaFS.ReadFile("schemas/" + kind + ".json")
		if err != nil {
			loadErr = err
			return
		}
		rs, err := compile(b)
		if err != nil {
			loadErr = fmt.Errorf("%s schema: %w", kind, err)
			return
		}
		resolved[kind] = rs
	}
}

func compile(raw []byte) (*jsonschema.Resolved, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

func validateKind(kind string, doc map[string]any) error {
	loadOnce.Do(load)
	if loadErr != nil {
		return loadErr
	}
	if err := resolved[kind].Validate(doc); err != nil {
		return &ValidationError{Kind: kind, Err: err}
	}
	return nil
}

// ValidateItem checks a decoded Item document.
func ValidateItem(doc map[string]any) error {
	return validateKind(KindItem, doc)
}

// ValidateCollection checks a decoded Collection document.
func ValidateCollection(doc map[string]any) error {
	return validateKind(KindCollection, doc)
}

// Schema is a compiled operator-supplied schema.
type Schema struct {
	rs *jsonschema.Resolved
}

// Compile resolves a schema document once for repeated validation. A nil
// document yields a nil *Schema, which accepts everything.
func Compile(doc map[string]any) (*Schema, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	rs, err := compile(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{rs: rs}, nil
}

// Validate checks doc against the schema.
func (s *Schema) Validate(doc map[string]any) error {
	if s == nil {
		return nil
	}
	if err := s.rs.Validate(doc); err != nil {
		return &ValidationError{Kind: "document", Err: err}
	}
	return nil
}

// Validate checks a document against an arbitrary schema document.
// Returns nil if the schema is nil.
func Validate(schema map[string]any, doc map[string]any) error {
	s, err := Compile(schema)
	if err != nil {
		return err
	}
	return s.Validate(doc)
}
