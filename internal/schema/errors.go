package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no schema matches a lookup.
	ErrNotFound      = errors.New("schema not found")
	ErrAlreadyExists = errors.New("schema already exists")
	ErrReadOnly      = errors.New("schema repository is read-only")
)

// ValidationError is a single element validation failure.
type ValidationError struct {
	Collection    string   `json:"collection"`
	Version       int      `json:"version"`
	Format        string   `json:"format,omitempty"`
	Message       string   `json:"message"`
	Field         string   `json:"field,omitempty"`
	ExpectedType  string   `json:"expected_type,omitempty"`
	ActualType    string   `json:"actual_type,omitempty"`
	UnknownFields []string `json:"unknown_fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.UnknownFields) > 0 {
		return fmt.Sprintf("unknown field(s) %v not allowed in schema %s v%d",
			e.UnknownFields, e.Collection, e.Version)
	}
	if e.Field != "" {
		return fmt.Sprintf("field '%s': %s (schema %s v%d)",
			e.Field, e.Message, e.Collection, e.Version)
	}
	return fmt.Sprintf("%s (schema %s v%d)", e.Message, e.Collection, e.Version)
}

// MultiValidationError aggregates the failures of one element.
type MultiValidationError struct {
	Errors []*ValidationError
}

func (e *MultiValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidationDetailer surfaces structured validation details for error responses.
type ValidationDetailer interface {
	Details() map[string]interface{}
}

func (e *ValidationError) Details() map[string]interface{} {
	d := map[string]interface{}{"message": e.Message}
	if len(e.UnknownFields) > 0 {
		d["unknown_fields"] = e.UnknownFields
	}
	if e.Field != "" {
		d["field"] = e.Field
	}
	return d
}

// Details lists every failed field with its message.
func (e *MultiValidationError) Details() map[string]interface{} {
	fields := make(map[string]string, len(e.Errors))
	var unknown []string
	for _, ve := range e.Errors {
		if ve.Field != "" {
			fields[ve.Field] = ve.Message
		}
		unknown = append(unknown, ve.UnknownFields...)
	}
	d := make(map[string]interface{})
	if len(fields) > 0 {
		d["fields"] = fields
	}
	if len(unknown) > 0 {
		d["unknown_fields"] = unknown
	}
	return d
}

// NewUnknownFieldsError reports element fields the schema does not declare.
func (c *CompiledSchema) NewUnknownFieldsError(fields []string) *ValidationError {
	e := c.NewError("", fmt.Sprintf("unknown field(s) not allowed: %v", fields))
	e.UnknownFields = fields
	return e
}

// NewTypeMismatchError reports a value of the wrong JSON type.
func (c *CompiledSchema) NewTypeMismatchError(field, expected, actual string) *ValidationError {
	e := c.NewError(field, fmt.Sprintf("expected %s, got %s", expected, actual))
	e.ExpectedType = expected
	e.ActualType = actual
	return e
}

// JSONTypeName names the JSON type of a decoded value.
func JSONTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, float32, int, int32, int64, uint64, json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
