// Package schema keeps versioned element schemas per collection and validates
// elements against them.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// State represents the lifecycle state of a schema.
type State string

const (
	StateActive     State = "active"
	StateDeprecated State = "deprecated"
)

// Format is the language a schema definition is written in.
type Format string

const (
	FormatProtobuf Format = "protobuf"
	FormatYaml     Format = "yaml"
)

// Schema is one version of the element schema of a collection.
type Schema struct {
	ID           string     `json:"id"`
	Collection   string     `json:"collection"`
	Version      int        `json:"version"`
	Format       Format     `json:"format"`
	Definition   []byte     `json:"definition"`
	Fingerprint  string     `json:"fingerprint"`
	State        State      `json:"state"`
	StrictMode   bool       `json:"strict_mode"`
	CreatedAt    time.Time  `json:"created_at"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// ComputeFingerprint calculates SHA-256 hash of the definition.
func ComputeFingerprint(definition []byte) string {
	hash := sha256.Sum256(definition)
	return hex.EncodeToString(hash[:])
}

// Key identifies a schema version.
type Key struct {
	Collection string
	Version    int
}

func (k Key) String() string {
	return fmt.Sprintf("%s v%d", k.Collection, k.Version)
}

// Key returns the lookup key for this schema.
func (s *Schema) Key() Key {
	return Key{Collection: s.Collection, Version: s.Version}
}

// CompiledSchema is a schema ready for validation. Exactly one of Message and
// Spec is set, matching Format.
type CompiledSchema struct {
	Collection string
	Version    int
	Format     Format
	StrictMode bool

	Message protoreflect.MessageDescriptor
	Spec    interface{}
}

// ProtoMessage returns the message descriptor of a protobuf schema.
func (c *CompiledSchema) ProtoMessage() (protoreflect.MessageDescriptor, error) {
	if c.Format != FormatProtobuf || c.Message == nil {
		return nil, fmt.Errorf("not a protobuf schema (format: %s)", c.Format)
	}
	return c.Message, nil
}

// YAMLSpec returns the field spec of a YAML schema.
func (c *CompiledSchema) YAMLSpec() (interface{}, error) {
	if c.Format != FormatYaml || c.Spec == nil {
		return nil, fmt.Errorf("not a YAML schema (format: %s)", c.Format)
	}
	return c.Spec, nil
}

// NewError starts a validation error for this schema.
func (c *CompiledSchema) NewError(field, message string) *ValidationError {
	return &ValidationError{
		Collection: c.Collection,
		Version:    c.Version,
		Format:     string(c.Format),
		Field:      field,
		Message:    message,
	}
}
