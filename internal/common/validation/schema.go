// Package validation checks job variables against JSON Schemas.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidInput = errors.New("INPUT_VALIDATION_FAILED")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error lists every schema violation. It matches ErrInvalidInput.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "input validation failed: " + strings.Join(parts, "; ")
}

func (e *Error) Is(target error) bool {
	return target == ErrInvalidInput
}

// Schema is a compiled JSON Schema, safe for concurrent use.
type Schema struct {
	compiled *gojsonschema.Schema
}

func Compile(schemaJSON string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// MustCompile is for package-level schemas.
func MustCompile(schemaJSON string) *Schema {
	s, err := Compile(schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateJSON validates a raw JSON document such as job.Variables.
func (s *Schema) ValidateJSON(raw string) error {
	return s.validate(gojsonschema.NewStringLoader(raw))
}

// Validate validates a decoded Go value.
func (s *Schema) Validate(doc interface{}) error {
	return s.validate(gojsonschema.NewGoLoader(doc))
}

func (s *Schema) validate(loader gojsonschema.JSONLoader) error {
	result, err := s.compiled.Validate(loader)
	if err != nil {
		return &Error{Fields: []FieldError{{Field: "(root)", Message: err.Error(), Code: "MALFORMED_JSON"}}}
	}
	if result.Valid() {
		return nil
	}

	fields := make([]FieldError, len(result.Errors()))
	for i, desc := range result.Errors() {
		fields[i] = FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		}
	}
	return &Error{Fields: fields}
}
