// Package protobuf implements element schemas written as proto3 messages.
// Elements are checked against the JSON mapping of the top-level message named
// after the collection, or the last top-level message when none is.
package protobuf

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/bufbuild/protocompile"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Handler compiles and checks protobuf element schemas.
type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Compile(ctx context.Context, s *schema.Schema) (*schema.CompiledSchema, error) {
	if s.Format != schema.FormatProtobuf {
		return nil, fmt.Errorf("expected protobuf format, got %s", s.Format)
	}

	fileName := fmt.Sprintf("%s_v%d.proto", strings.NewReplacer(".", "_", "/", "_").Replace(s.Collection), s.Version)
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(map[string]string{fileName: string(s.Definition)}),
		}),
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(ctx, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile proto: %w", err)
	}
	if len(files) == 0 || files[0].Messages().Len() == 0 {
		return nil, fmt.Errorf("proto must define at least one message")
	}

	return &schema.CompiledSchema{
		Collection: s.Collection,
		Version:    s.Version,
		Format:     schema.FormatProtobuf,
		StrictMode: s.StrictMode,
		Message:    elementMessage(files[0].Messages(), s.Collection),
	}, nil
}

// elementMessage picks the message describing elements of collection. Names match
// ignoring case and underscores, with or without a trailing "s" on the collection,
// so "Task" describes "tasks". Helper messages usually come first, hence the
// fallback to the last one.
func elementMessage(msgs protoreflect.MessageDescriptors, collection string) protoreflect.MessageDescriptor {
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, "_", "")) }
	want := norm(collection)
	for i := 0; i < msgs.Len(); i++ {
		name := norm(string(msgs.Get(i).Name()))
		if name == want || name+"s" == want || name+"es" == want {
			return msgs.Get(i)
		}
	}
	return msgs.Get(msgs.Len() - 1)
}

func (h *Handler) Validate(_ context.Context, compiled *schema.CompiledSchema, element map[string]interface{}) error {
	md, err := compiled.ProtoMessage()
	if err != nil {
		return err
	}

	var errs []*schema.ValidationError
	checkMessage(compiled, md, "", element, &errs)
	if len(errs) > 0 {
		return &schema.MultiValidationError{Errors: errs}
	}
	return nil
}

func checkMessage(c *schema.CompiledSchema, md protoreflect.MessageDescriptor, prefix string, obj map[string]interface{}, errs *[]*schema.ValidationError) {
	fields := md.Fields()
	known := make(map[string]protoreflect.FieldDescriptor, fields.Len()*2)
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		known[fd.JSONName()] = fd
		known[string(fd.Name())] = fd
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var unknown []string
	for _, key := range keys {
		fd, ok := known[key]
		if !ok {
			if prefix == "" && (key == "id" || key == "_id") {
				continue
			}
			unknown = append(unknown, prefix+key)
			continue
		}
		if ve := checkField(c, fd, prefix+key, obj[key], errs); ve != nil {
			*errs = append(*errs, ve)
		}
	}
	if c.StrictMode && len(unknown) > 0 {
		*errs = append(*errs, c.NewUnknownFieldsError(unknown))
	}
}

func checkField(c *schema.CompiledSchema, fd protoreflect.FieldDescriptor, path string, value interface{}, errs *[]*schema.ValidationError) *schema.ValidationError {
	if value == nil {
		return nil
	}

	switch {
	case fd.IsMap():
		m, ok := value.(map[string]interface{})
		if !ok {
			return c.NewTypeMismatchError(path, "object", schema.JSONTypeName(value))
		}
		for k, v := range m {
			if ve := checkScalar(c, fd.MapValue(), fmt.Sprintf("%s[%q]", path, k), v, errs); ve != nil {
				return ve
			}
		}
		return nil
	case fd.IsList():
		arr, ok := value.([]interface{})
		if !ok {
			return c.NewTypeMismatchError(path, "array", schema.JSONTypeName(value))
		}
		for i, v := range arr {
			if ve := checkScalar(c, fd, fmt.Sprintf("%s[%d]", path, i), v, errs); ve != nil {
				return ve
			}
		}
		return nil
	}
	return checkScalar(c, fd, path, value, errs)
}

var intRanges = map[protoreflect.Kind][2]decimal.Decimal{
	protoreflect.Int32Kind:    {decimal.NewFromInt(math.MinInt32), decimal.NewFromInt(math.MaxInt32)},
	protoreflect.Sint32Kind:   {decimal.NewFromInt(math.MinInt32), decimal.NewFromInt(math.MaxInt32)},
	protoreflect.Sfixed32Kind: {decimal.NewFromInt(math.MinInt32), decimal.NewFromInt(math.MaxInt32)},
	protoreflect.Int64Kind:    {decimal.NewFromInt(math.MinInt64), decimal.NewFromInt(math.MaxInt64)},
	protoreflect.Sint64Kind:   {decimal.NewFromInt(math.MinInt64), decimal.NewFromInt(math.MaxInt64)},
	protoreflect.Sfixed64Kind: {decimal.NewFromInt(math.MinInt64), decimal.NewFromInt(math.MaxInt64)},
	protoreflect.Uint32Kind:   {decimal.Zero, decimal.NewFromInt(math.MaxUint32)},
	protoreflect.Fixed32Kind:  {decimal.Zero, decimal.NewFromInt(math.MaxUint32)},
	protoreflect.Uint64Kind:   {decimal.Zero, decimal.RequireFromString("18446744073709551615")},
	protoreflect.Fixed64Kind:  {decimal.Zero, decimal.RequireFromString("18446744073709551615")},
}

func checkScalar(c *schema.CompiledSchema, fd protoreflect.FieldDescriptor, path string, value interface{}, errs *[]*schema.ValidationError) *schema.ValidationError {
	if value == nil {
		return nil
	}

	kind := fd.Kind()
	switch kind {
	case protoreflect.BoolKind:
		if _, ok := value.(bool); !ok {
			return c.NewTypeMismatchError(path, "bool", schema.JSONTypeName(value))
		}
	case protoreflect.StringKind:
		if _, ok := value.(string); !ok {
			return c.NewTypeMismatchError(path, "string", schema.JSONTypeName(value))
		}
	case protoreflect.BytesKind:
		if _, ok := value.(string); !ok {
			return c.NewTypeMismatchError(path, "string (base64)", schema.JSONTypeName(value))
		}
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		if _, ok := numeric(value); !ok {
			return c.NewTypeMismatchError(path, "number", schema.JSONTypeName(value))
		}
	case protoreflect.EnumKind:
		switch v := value.(type) {
		case string:
			if fd.Enum().Values().ByName(protoreflect.Name(v)) == nil {
				return c.NewError(path, fmt.Sprintf("value %q is not a member of enum %s", v, fd.Enum().Name()))
			}
		default:
			if _, ok := numeric(value); !ok {
				return c.NewTypeMismatchError(path, "string or integer (enum)", schema.JSONTypeName(value))
			}
		}
	case protoreflect.MessageKind:
		m, ok := value.(map[string]interface{})
		if !ok {
			return c.NewTypeMismatchError(path, "object", schema.JSONTypeName(value))
		}
		checkMessage(c, fd.Message(), path+".", m, errs)
	default:
		bounds, ok := intRanges[kind]
		if !ok {
			return nil
		}
		// proto3 JSON allows 64-bit integers as strings.
		d, ok := numeric(value)
		if !ok {
			return c.NewTypeMismatchError(path, "integer", schema.JSONTypeName(value))
		}
		if !d.IsInteger() {
			return c.NewError(path, "expected integer, got float with fractional part")
		}
		if d.LessThan(bounds[0]) || d.GreaterThan(bounds[1]) {
			return c.NewError(path, fmt.Sprintf("value %s out of range for %s", d, kind))
		}
	}
	return nil
}

func numeric(value interface{}) (decimal.Decimal, bool) {
	switch n := value.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
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
