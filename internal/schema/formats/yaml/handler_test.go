package yaml

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aevon-lab/eventbridge/internal/schema"
)

func yamlSchema(collection string, version int, def string) *schema.Schema {
	return &schema.Schema{
		Collection: collection,
		Version:    version,
		Format:     schema.FormatYaml,
		Definition: []byte(def),
	}
}

func TestHandler_Compile(t *testing.T) {
	h := New()
	ctx := context.Background()

	tests := []struct {
		name       string
		definition string
		errMsg     string
	}{
		{
			name: "shorthand scalar types",
			definition: `
collection: tasks
version: 1
fields:
  title:    string!
  done:     bool
  priority: int32
  budget:   int64
  ratio:    float
  score:    double
`,
		},
		{
			name: "long form with constraints",
			definition: `
collection: tasks
version: 1
fields:
  title:
    type: string!
    minLength: 1
    maxLength: 200
    pattern: "^[A-Za-z]"
  priority:
    type: int32
    min: 1
    max: 5
  state:
    type: string
    enum: [open, closed]
`,
		},
		{
			name:       "collection mismatch",
			definition: "collection: notes\nversion: 1\nfields:\n  title: string\n",
			errMsg:     `schema collection "notes" does not match "tasks"`,
		},
		{
			name:       "version mismatch",
			definition: "collection: tasks\nversion: 2\nfields:\n  title: string\n",
			errMsg:     "schema version 2 does not match 1",
		},
		{
			name:       "no fields",
			definition: "collection: tasks\nversion: 1\nfields: {}\n",
			errMsg:     "at least one field",
		},
		{
			name:       "unsupported type",
			definition: "collection: tasks\nversion: 1\nfields:\n  title: text\n",
			errMsg:     `unsupported type "text"`,
		},
		{
			name:       "reserved id field",
			definition: "collection: tasks\nversion: 1\nfields:\n  _id: string\n",
			errMsg:     `field "_id" is reserved`,
		},
		{
			name: "min above max",
			definition: `
collection: tasks
version: 1
fields:
  priority:
    type: int32
    min: 10
    max: 1
`,
			errMsg: "min (10) cannot exceed max (1)",
		},
		{
			name: "numeric enum on string",
			definition: `
collection: tasks
version: 1
fields:
  state:
    type: string
    enum: [open, 3]
`,
			errMsg: "enum[1]: expected string",
		},
		{
			name: "invalid pattern",
			definition: `
collection: tasks
version: 1
fields:
  title:
    type: string
    pattern: "(["
`,
			errMsg: "invalid regex pattern",
		},
		{
			name: "length on boolean",
			definition: `
collection: tasks
version: 1
fields:
  done:
    type: bool
    minLength: 1
`,
			errMsg: "boolean fields take no constraints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := h.Compile(ctx, yamlSchema("tasks", 1, tt.definition))
			if tt.errMsg != "" {
				if err == nil {
					t.Fatalf("Compile() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Compile() error = %v, want containing %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compile() unexpected error: %v", err)
			}
			if compiled.Format != schema.FormatYaml {
				t.Errorf("Compile() format = %v, want %v", compiled.Format, schema.FormatYaml)
			}
		})
	}
}

func TestHandler_CompileRejectsOtherFormats(t *testing.T) {
	s := yamlSchema("tasks", 1, "collection: tasks\nversion: 1\nfields:\n  title: string\n")
	s.Format = schema.FormatProtobuf
	if _, err := New().Compile(context.Background(), s); err == nil {
		t.Fatal("expected error for protobuf schema")
	}
}

func TestHandler_Validate(t *testing.T) {
	h := New()
	ctx := context.Background()

	s := yamlSchema("users", 1, `
collection: users
version: 1
strictMode: true
fields:
  name:
    type: string!
    minLength: 1
    maxLength: 10
  email:
    type: string
    pattern: "^[^@]+@[^@]+$"
  age:
    type: int32
    min: 0
    max: 150
  status:
    type: string
    enum: [active, inactive]
  verified: bool
`)
	compiled, err := h.Compile(ctx, s)
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}

	tests := []struct {
		name    string
		element map[string]interface{}
		errMsg  string
	}{
		{name: "all fields", element: map[string]interface{}{"name": "Ada", "email": "ada@example.com", "age": float64(36), "status": "active", "verified": true}},
		{name: "required only", element: map[string]interface{}{"name": "Ada"}},
		{name: "nullable optional", element: map[string]interface{}{"name": "Ada", "age": nil}},
		{name: "json number", element: map[string]interface{}{"name": "Ada", "age": json.Number("36")}},
		{name: "multibyte length", element: map[string]interface{}{"name": "ÅÅÅÅÅÅÅÅÅÅ"}},
		{name: "missing required", element: map[string]interface{}{"email": "a@b"}, errMsg: "required field is missing"},
		{name: "null required", element: map[string]interface{}{"name": nil}, errMsg: "required field cannot be null"},
		{name: "too short", element: map[string]interface{}{"name": ""}, errMsg: "less than minimum"},
		{name: "too long", element: map[string]interface{}{"name": "abcdefghijk"}, errMsg: "exceeds maximum"},
		{name: "pattern", element: map[string]interface{}{"name": "Ada", "email": "nope"}, errMsg: "does not match pattern"},
		{name: "below min", element: map[string]interface{}{"name": "Ada", "age": float64(-1)}, errMsg: "less than minimum"},
		{name: "above max", element: map[string]interface{}{"name": "Ada", "age": float64(200)}, errMsg: "exceeds maximum"},
		{name: "enum", element: map[string]interface{}{"name": "Ada", "status": "gone"}, errMsg: "not in enum"},
		{name: "string for number", element: map[string]interface{}{"name": "Ada", "age": "thirty"}, errMsg: "expected number, got string"},
		{name: "number for boolean", element: map[string]interface{}{"name": "Ada", "verified": 1}, errMsg: "expected boolean, got number"},
		{name: "array for string", element: map[string]interface{}{"name": []interface{}{"a"}}, errMsg: "expected string, got array"},
		{name: "unknown field", element: map[string]interface{}{"name": "Ada", "nickname": "A"}, errMsg: "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Validate(ctx, compiled, tt.element)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestHandler_ValidateReportsEveryField(t *testing.T) {
	h := New()
	ctx := context.Background()
	compiled, err := h.Compile(ctx, yamlSchema("tasks", 1, "collection: tasks\nversion: 1\nfields:\n  title: string!\n  priority: int32!\n"))
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}

	err = h.Validate(ctx, compiled, map[string]interface{}{})
	var multi *schema.MultiValidationError
	if !errors.As(err, &multi) {
		t.Fatalf("expected MultiValidationError, got %T", err)
	}
	if len(multi.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(multi.Errors))
	}
	fields := multi.Details()["fields"].(map[string]string)
	if fields["title"] != "required field is missing" || fields["priority"] != "required field is missing" {
		t.Errorf("unexpected details: %v", fields)
	}
}

func TestHandler_NumberKinds(t *testing.T) {
	h := New()
	ctx := context.Background()

	tests := []struct {
		name       string
		kind       string
		value      interface{}
		errContain string
	}{
		{name: "int32 min", kind: "int32", value: float64(-2147483648)},
		{name: "int32 max", kind: "int32", value: float64(2147483647)},
		{name: "int32 overflow", kind: "int32", value: float64(3000000000), errContain: "out of range for int32"},
		{name: "int32 underflow", kind: "int32", value: float64(-3000000000), errContain: "out of range for int32"},
		{name: "int32 fractional", kind: "int32", value: float64(123.45), errContain: "fractional part"},
		{name: "int64 max exact", kind: "int64", value: json.Number("9223372036854775807")},
		{name: "int64 overflow by one", kind: "int64", value: json.Number("9223372036854775808"), errContain: "out of range for int64"},
		{name: "int64 fractional", kind: "int64", value: json.Number("1.5"), errContain: "fractional part"},
		{name: "int64 exponent integer", kind: "int64", value: json.Number("1e3")},
		{name: "float", kind: "float", value: float64(123.456)},
		{name: "float overflow", kind: "float", value: float64(1e39), errContain: "out of range for float32"},
		{name: "double", kind: "double", value: float64(1e300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := h.Compile(ctx, yamlSchema("metrics", 1, "collection: metrics\nversion: 1\nfields:\n  value: "+tt.kind+"\n"))
			if err != nil {
				t.Fatalf("Failed to compile schema: %v", err)
			}

			err = h.Validate(ctx, compiled, map[string]interface{}{"value": tt.value})
			if tt.errContain == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContain) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errContain)
			}
		})
	}
}

func TestHandler_ExactBoundsAndEnum(t *testing.T) {
	h := New()
	ctx := context.Background()
	compiled, err := h.Compile(ctx, yamlSchema("ledger", 1, `
collection: ledger
version: 1
fields:
  amount:
    type: int64
    max: 9007199254740993
  tier:
    type: double
    enum: [0.1, 0.25]
`))
	if err != nil {
		t.Fatalf("Failed to compile schema: %v", err)
	}

	if err := h.Validate(ctx, compiled, map[string]interface{}{"amount": json.Number("9007199254740993")}); err != nil {
		t.Errorf("bound value rejected: %v", err)
	}
	if err := h.Validate(ctx, compiled, map[string]interface{}{"amount": json.Number("9007199254740994")}); err == nil {
		t.Error("value above exact bound accepted")
	}
	if err := h.Validate(ctx, compiled, map[string]interface{}{"tier": float64(0.25)}); err != nil {
		t.Errorf("enum member rejected: %v", err)
	}
	if err := h.Validate(ctx, compiled, map[string]interface{}{"tier": json.Number("0.30")}); err == nil {
		t.Error("non-member accepted")
	}
}
