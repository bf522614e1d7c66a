// Package yaml implements YAML field-spec element schemas.
package yaml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SchemaSpec is the parsed form of a YAML element schema:
//
//	collection: tasks
//	version: 2
//	fields:
//	  title: string!
//	  priority:
//	    type: int32
//	    min: 1
//	    max: 5
type SchemaSpec struct {
	Collection  string            `yaml:"collection"`
	Version     int               `yaml:"version"`
	Description string            `yaml:"description,omitempty"`
	StrictMode  bool              `yaml:"strictMode,omitempty"`
	Fields      map[string]*Field `yaml:"fields"`
}

// Field is one declared element field. The scalar form "name: int32!" and
// the mapping form with a "type" key are both accepted; "!" marks it required.
type Field struct {
	// Type is "string", "boolean" or "number".
	Type string `yaml:"type"`
	// Kind is the numeric precision: int32, int64, float or double.
	Kind     string `yaml:"-"`
	Required bool   `yaml:"required,omitempty"`

	Enum []Value  `yaml:"enum,omitempty"`
	Min  *Number `yaml:"min,omitempty"`
	Max  *Number `yaml:"max,omitempty"`

	MinLength *int   `yaml:"minLength,omitempty"`
	MaxLength *int   `yaml:"maxLength,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`

	pattern *regexp.Regexp
}

// Number is a YAML scalar parsed as an exact decimal, so bounds such as
// 9223372036854775807 survive without float rounding.
type Number struct {
	decimal.Decimal
}

func (n *Number) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a number, got %s", nodeKind(value))
	}
	d, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid number %q", value.Value)
	}
	n.Decimal = d
	return nil
}

// Value is an enum member. Numbers keep their exact text.
type Value struct {
	Str    *string
	Number *decimal.Decimal
}

func (v *Value) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("enum values must be scalars, got %s", nodeKind(value))
	}
	switch value.ShortTag() {
	case "!!int", "!!float":
		d, err := decimal.NewFromString(value.Value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value.Value)
		}
		v.Number = &d
	default:
		s := value.Value
		v.Str = &s
	}
	return nil
}

func (v Value) String() string {
	if v.Number != nil {
		return v.Number.String()
	}
	if v.Str != nil {
		return *v.Str
	}
	return "<nil>"
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	}
	return "scalar"
}

func (f *Field) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return f.parseType(value.Value)
	}

	type plain Field
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = Field(p)
	if f.Type == "" {
		return fmt.Errorf("field missing 'type'")
	}
	return f.parseType(f.Type)
}

func (f *Field) parseType(s string) error {
	if strings.HasSuffix(s, "!") {
		f.Required = true
		s = strings.TrimSuffix(s, "!")
	}

	switch s {
	case "string":
		f.Type = "string"
	case "bool", "boolean":
		f.Type = "boolean"
	case "int32", "int64", "float", "double":
		f.Type = "number"
		f.Kind = s
	default:
		return fmt.Errorf("unsupported type %q (must be: string, bool, int32, int64, float, double)", s)
	}
	return nil
}

// Validate checks the spec itself, compiling patterns on the way.
func (s *SchemaSpec) Validate() error {
	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if s.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema must define at least one field")
	}
	for name, field := range s.Fields {
		if field == nil {
			return fmt.Errorf("field %q: type cannot be empty", name)
		}
		if name == "id" || name == "_id" {
			return fmt.Errorf("field %q is reserved", name)
		}
		if err := field.validate(); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

func (f *Field) validate() error {
	switch f.Type {
	case "string":
		return f.validateString()
	case "boolean":
		if f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" || f.Min != nil || f.Max != nil || len(f.Enum) > 0 {
			return fmt.Errorf("boolean fields take no constraints")
		}
		return nil
	case "number":
		return f.validateNumber()
	}
	return fmt.Errorf("unsupported type %q", f.Type)
}

func (f *Field) validateString() error {
	if f.Min != nil || f.Max != nil {
		return fmt.Errorf("string fields do not support min/max constraints")
	}
	if (f.MinLength != nil && *f.MinLength < 0) || (f.MaxLength != nil && *f.MaxLength < 0) {
		return fmt.Errorf("length bounds cannot be negative")
	}
	if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
		return fmt.Errorf("minLength (%d) cannot exceed maxLength (%d)", *f.MinLength, *f.MaxLength)
	}
	if f.Pattern != "" {
		if len(f.Pattern) > 1000 {
			return fmt.Errorf("pattern too long (max 1000 chars)")
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		f.pattern = re
	}
	for i, v := range f.Enum {
		if v.Str == nil {
			return fmt.Errorf("enum[%d]: expected string, got %s", i, v)
		}
	}
	return nil
}

func (f *Field) validateNumber() error {
	if f.MinLength != nil || f.MaxLength != nil || f.Pattern != "" {
		return fmt.Errorf("number fields do not support length or pattern constraints")
	}
	if f.Min != nil && f.Max != nil && f.Min.GreaterThan(f.Max.Decimal) {
		return fmt.Errorf("min (%s) cannot exceed max (%s)", f.Min, f.Max)
	}
	for i, v := range f.Enum {
		if v.Number == nil {
			return fmt.Errorf("enum[%d]: expected number, got %q", i, v)
		}
	}
	return nil
}
