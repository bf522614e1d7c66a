package yaml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	minInt32   = decimal.NewFromInt(math.MinInt32)
	maxInt32   = decimal.NewFromInt(math.MaxInt32)
	minInt64   = decimal.NewFromInt(math.MinInt64)
	maxInt64   = decimal.NewFromInt(math.MaxInt64)
	maxFloat32 = decimal.NewFromFloat(math.MaxFloat32)
)

// Handler compiles and checks YAML element schemas.
type Handler struct{}

func New() *Handler { return &Handler{} }

// Compile parses the definition and checks it names the schema's collection and version.
func (h *Handler) Compile(_ context.Context, s *schema.Schema) (*schema.CompiledSchema, error) {
	if s.Format != schema.FormatYaml {
		return nil, fmt.Errorf("expected yaml format, got %s", s.Format)
	}

	var spec SchemaSpec
	if err := yaml.Unmarshal(s.Definition, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML schema: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid YAML schema: %w", err)
	}
	if spec.Collection != s.Collection {
		return nil, fmt.Errorf("schema collection %q does not match %q", spec.Collection, s.Collection)
	}
	if spec.Version != s.Version {
		return nil, fmt.Errorf("schema version %d does not match %d", spec.Version, s.Version)
	}

	return &schema.CompiledSchema{
		Collection: s.Collection,
		Version:    s.Version,
		Format:     schema.FormatYaml,
		StrictMode: s.StrictMode || spec.StrictMode,
		Spec:       &spec,
	}, nil
}

// Validate checks element against a compiled YAML schema and reports every failing field.
func (h *Handler) Validate(_ context.Context, compiled *schema.CompiledSchema, element map[string]interface{}) error {
	raw, err := compiled.YAMLSpec()
	if err != nil {
		return err
	}
	spec, ok := raw.(*SchemaSpec)
	if !ok {
		return fmt.Errorf("compiled schema is not a YAML SchemaSpec: %T", raw)
	}

	if compiled.StrictMode {
		var unknown []string
		for key := range element {
			if _, ok := spec.Fields[key]; !ok {
				unknown = append(unknown, key)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return compiled.NewUnknownFieldsError(unknown)
		}
	}

	names := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []*schema.ValidationError
	for _, name := range names {
		field := spec.Fields[name]
		value, present := element[name]
		switch {
		case !present && field.Required:
			errs = append(errs, compiled.NewError(name, "required field is missing"))
		case !present:
		case value == nil && field.Required:
			errs = append(errs, compiled.NewError(name, "required field cannot be null"))
		case value == nil:
		default:
			if ve := checkValue(compiled, name, field, value); ve != nil {
				errs = append(errs, ve)
			}
		}
	}
	if len(errs) > 0 {
		return &schema.MultiValidationError{Errors: errs}
	}
	return nil
}

func checkValue(c *schema.CompiledSchema, name string, f *Field, value interface{}) *schema.ValidationError {
	switch f.Type {
	case "string":
		return checkString(c, name, f, value)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return c.NewTypeMismatchError(name, "boolean", schema.JSONTypeName(value))
		}
		return nil
	case "number":
		return checkNumber(c, name, f, value)
	}
	return c.NewError(name, fmt.Sprintf("unknown field type: %s", f.Type))
}

func checkString(c *schema.CompiledSchema, name string, f *Field, value interface{}) *schema.ValidationError {
	str, ok := value.(string)
	if !ok {
		return c.NewTypeMismatchError(name, "string", schema.JSONTypeName(value))
	}

	if len(f.Enum) > 0 {
		found := false
		for _, v := range f.Enum {
			if v.Str != nil && *v.Str == str {
				found = true
				break
			}
		}
		if !found {
			return c.NewError(name, fmt.Sprintf("value %q not in enum %v", str, f.Enum))
		}
	}

	length := utf8.RuneCountInString(str)
	if f.MinLength != nil && length < *f.MinLength {
		return c.NewError(name, fmt.Sprintf("string length %d is less than minimum %d", length, *f.MinLength))
	}
	if f.MaxLength != nil && length > *f.MaxLength {
		return c.NewError(name, fmt.Sprintf("string length %d exceeds maximum %d", length, *f.MaxLength))
	}
	if f.pattern != nil && !f.pattern.MatchString(str) {
		return c.NewError(name, fmt.Sprintf("string does not match pattern %q", f.Pattern))
	}
	return nil
}

// toDecimal converts a decoded JSON number. json.Number keeps full precision.
func toDecimal(value interface{}) (decimal.Decimal, bool) {
	switch n := value.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

func checkNumber(c *schema.CompiledSchema, name string, f *Field, value interface{}) *schema.ValidationError {
	num, ok := toDecimal(value)
	if !ok {
		return c.NewTypeMismatchError(name, "number", schema.JSONTypeName(value))
	}

	switch f.Kind {
	case "int32", "int64":
		if !num.IsInteger() {
			return c.NewError(name, "expected integer, got float with fractional part")
		}
		lo, hi := minInt32, maxInt32
		if f.Kind == "int64" {
			lo, hi = minInt64, maxInt64
		}
		if num.LessThan(lo) || num.GreaterThan(hi) {
			return c.NewError(name, fmt.Sprintf("value %s out of range for %s (min: %s, max: %s)", num, f.Kind, lo, hi))
		}
	case "float":
		if num.Abs().GreaterThan(maxFloat32) {
			return c.NewError(name, fmt.Sprintf("value %s out of range for float32", num))
		}
	case "double":
	default:
		return c.NewError(name, fmt.Sprintf("unknown number kind: %s", f.Kind))
	}

	if len(f.Enum) > 0 {
		found := false
		for _, v := range f.Enum {
			if v.Number != nil && v.Number.Equal(num) {
				found = true
				break
			}
		}
		if !found {
			return c.NewError(name, fmt.Sprintf("value %s not in enum %v", num, f.Enum))
		}
	}

	if f.Min != nil && num.LessThan(f.Min.Decimal) {
		return c.NewError(name, fmt.Sprintf("value %s is less than minimum %s", num, f.Min))
	}
	if f.Max != nil && num.GreaterThan(f.Max.Decimal) {
		return c.NewError(name, fmt.Sprintf("value %s exceeds maximum %s", num, f.Max))
	}
	return nil
}
