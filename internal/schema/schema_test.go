package schema_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/aevon-lab/eventbridge/internal/schema/formats/protobuf"
	"github.com/aevon-lab/eventbridge/internal/schema/formats/yaml"
	"github.com/aevon-lab/eventbridge/internal/schema/storage"
)

const tasksV1 = `
collection: tasks
version: 1
fields:
  title: string!
`

const tasksV2 = `
collection: tasks
version: 2
strictMode: true
fields:
  title: string!
  priority: int32
`

func TestRegistry_Register(t *testing.T) {
	reg := schema.NewRegistry(storage.NewMemoryRepository())
	ctx := context.Background()

	tests := []struct {
		name       string
		collection string
		version    int
		definition []byte
		errMsg     string
	}{
		{name: "valid schema", collection: "tasks", version: 1, definition: []byte(tasksV1)},
		{name: "missing collection", version: 1, definition: []byte(tasksV1), errMsg: "collection is required"},
		{name: "invalid version", collection: "tasks", version: 0, definition: []byte(tasksV1), errMsg: "version must be >= 1"},
		{name: "empty definition", collection: "tasks", version: 3, errMsg: "definition is required"},
		{name: "duplicate", collection: "tasks", version: 1, definition: []byte(tasksV1), errMsg: schema.ErrAlreadyExists.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := reg.Register(ctx, tt.collection, tt.version, schema.FormatYaml, tt.definition, false)
			if tt.errMsg != "" {
				if err == nil || err.Error() != tt.errMsg {
					t.Errorf("Register() error = %v, want %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register() unexpected error: %v", err)
			}
			if s.ID == "" || s.Fingerprint != schema.ComputeFingerprint(tt.definition) || s.State != schema.StateActive {
				t.Errorf("Register() returned %+v", s)
			}
		})
	}
}

func TestRegistry_GetResolvesLatestActive(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry(storage.NewMemoryRepository())
	for v, def := range map[int]string{1: tasksV1, 2: tasksV2} {
		if _, err := reg.Register(ctx, "tasks", v, schema.FormatYaml, []byte(def), false); err != nil {
			t.Fatalf("Register(v%d): %v", v, err)
		}
	}

	s, err := reg.Get(ctx, "tasks", 0)
	if err != nil || s.Version != 2 {
		t.Fatalf("Get(latest) = %+v, %v; want v2", s, err)
	}

	if err := reg.Deprecate(ctx, "tasks", 2); err != nil {
		t.Fatalf("Deprecate: %v", err)
	}
	s, err = reg.Get(ctx, "tasks", 0)
	if err != nil || s.Version != 1 {
		t.Fatalf("Get(latest) after deprecate = %+v, %v; want v1", s, err)
	}

	pinned, err := reg.Get(ctx, "tasks", 2)
	if err != nil || pinned.State != schema.StateDeprecated {
		t.Fatalf("Get(v2) = %+v, %v; want deprecated v2", pinned, err)
	}

	if _, err := reg.Get(ctx, "tasks", 9); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Get(v9) error = %v, want ErrNotFound", err)
	}
	if _, err := reg.Get(ctx, "notes", 0); !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("Get(notes latest) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_GetIsCached(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	reg := schema.NewRegistry(repo)
	if _, err := reg.Register(ctx, "tasks", 1, schema.FormatYaml, []byte(tasksV1), false); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, schema.Key{Collection: "tasks", Version: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get(ctx, "tasks", 1); err != nil {
		t.Errorf("cached Get() error = %v", err)
	}
}

func newValidator() *schema.Validator {
	v := schema.NewValidator()
	v.Register(schema.FormatYaml, yaml.New())
	v.Register(schema.FormatProtobuf, protobuf.New())
	return v
}

func TestValidator_Formats(t *testing.T) {
	got := newValidator().Formats()
	if len(got) != 2 || got[0] != schema.FormatProtobuf || got[1] != schema.FormatYaml {
		t.Errorf("Formats() = %v", got)
	}
}

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()
	v := newValidator()
	reg := schema.NewRegistry(storage.NewMemoryRepository())

	yamlSchema, err := reg.Register(ctx, "tasks", 2, schema.FormatYaml, []byte(tasksV2), false)
	if err != nil {
		t.Fatal(err)
	}
	protoSchema, err := reg.Register(ctx, "notes", 1, schema.FormatProtobuf,
		[]byte(`syntax = "proto3"; message Note { string body = 1; int32 stars = 2; }`), true)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		schema  *schema.Schema
		element map[string]interface{}
		wantErr bool
	}{
		{"yaml valid", yamlSchema, map[string]interface{}{"title": "a", "priority": float64(1)}, false},
		{"yaml strict from definition", yamlSchema, map[string]interface{}{"title": "a", "extra": 1.0}, true},
		{"proto valid", protoSchema, map[string]interface{}{"body": "hi", "stars": float64(5)}, false},
		{"proto wrong type", protoSchema, map[string]interface{}{"body": 5.0}, true},
		{"proto strict", protoSchema, map[string]interface{}{"title": "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(ctx, tt.schema, tt.element)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var detailer schema.ValidationDetailer
				if !errors.As(err, &detailer) {
					t.Errorf("error %T does not expose details", err)
				}
			}
		})
	}
}

func TestValidator_UnsupportedFormat(t *testing.T) {
	err := schema.NewValidator().Validate(context.Background(), &schema.Schema{Collection: "tasks", Version: 1, Format: schema.FormatYaml}, nil)
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
}

type countingHandler struct {
	compiles atomic.Int32
}

func (c *countingHandler) Compile(_ context.Context, s *schema.Schema) (*schema.CompiledSchema, error) {
	c.compiles.Add(1)
	return &schema.CompiledSchema{Collection: s.Collection, Version: s.Version, Format: s.Format, Spec: struct{}{}}, nil
}

func (c *countingHandler) Validate(context.Context, *schema.CompiledSchema, map[string]interface{}) error {
	return nil
}

func TestValidator_CompilesOnceAcrossGoroutines(t *testing.T) {
	ctx := context.Background()
	h := &countingHandler{}
	v := schema.NewValidator()
	v.Register(schema.FormatYaml, h)

	s := &schema.Schema{Collection: "tasks", Version: 1, Format: schema.FormatYaml, Fingerprint: "f1"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Validate(ctx, s, map[string]interface{}{}); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := h.compiles.Load(); n != 1 {
		t.Errorf("compiled %d times, want 1", n)
	}

	// A changed definition gets its own entry.
	edited := *s
	edited.Fingerprint = "f2"
	if err := v.Validate(ctx, &edited, nil); err != nil {
		t.Fatal(err)
	}
	v.Invalidate(s)
	if err := v.Validate(ctx, s, nil); err != nil {
		t.Fatal(err)
	}
	if n := h.compiles.Load(); n != 3 {
		t.Errorf("compiled %d times, want 3", n)
	}
}

func TestComputeFingerprint(t *testing.T) {
	a := schema.ComputeFingerprint([]byte(tasksV1))
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
	if a != schema.ComputeFingerprint([]byte(tasksV1)) || a == schema.ComputeFingerprint([]byte(tasksV2)) {
		t.Error("fingerprint is not a function of the definition")
	}
}
