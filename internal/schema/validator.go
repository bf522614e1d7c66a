package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FormatHandler compiles and checks one schema format.
type FormatHandler interface {
	Compile(ctx context.Context, s *Schema) (*CompiledSchema, error)
	Validate(ctx context.Context, compiled *CompiledSchema, element map[string]interface{}) error
}

// DefaultCompiledCapacity bounds the compiled schema cache.
const DefaultCompiledCapacity = 256

// Validator validates elements against schemas, compiling each definition once.
type Validator struct {
	mu       sync.RWMutex
	handlers map[Format]FormatHandler

	compiled     *lru[string, *CompiledSchema]
	compileGroup singleflight.Group
}

// NewValidator creates a validator with no formats registered.
func NewValidator() *Validator {
	return &Validator{
		handlers: make(map[Format]FormatHandler),
		compiled: newLRU[string, *CompiledSchema](DefaultCompiledCapacity),
	}
}

// Register enables a format.
func (v *Validator) Register(format Format, h FormatHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers[format] = h
}

// Formats lists the registered formats.
func (v *Validator) Formats() []Format {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Format, 0, len(v.handlers))
	for f := range v.handlers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (v *Validator) handler(format Format) (FormatHandler, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	h, ok := v.handlers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported schema format: %s", format)
	}
	return h, nil
}

// The fingerprint keeps an edited definition from hitting a stale entry.
func compiledKey(s *Schema) string {
	return fmt.Sprintf("%s:%d:%s", s.Collection, s.Version, s.Fingerprint)
}

// Validate checks element against s.
func (v *Validator) Validate(ctx context.Context, s *Schema, element map[string]interface{}) error {
	compiled, err := v.Compile(ctx, s)
	if err != nil {
		return err
	}
	h, err := v.handler(s.Format)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return h.Validate(ctx, compiled, element)
}

// Compile returns the compiled form of s, compiling it at most once
// across concurrent callers.
func (v *Validator) Compile(ctx context.Context, s *Schema) (*CompiledSchema, error) {
	key := compiledKey(s)
	if c, ok := v.compiled.get(key); ok {
		return c, nil
	}

	result, err, _ := v.compileGroup.Do(key, func() (interface{}, error) {
		if c, ok := v.compiled.get(key); ok {
			return c, nil
		}
		h, err := v.handler(s.Format)
		if err != nil {
			return nil, fmt.Errorf("compilation failed: %w", err)
		}
		c, err := h.Compile(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", s.Key(), err)
		}
		v.compiled.put(key, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*CompiledSchema), nil
}

// Invalidate drops the compiled form of s.
func (v *Validator) Invalidate(s *Schema) {
	v.compiled.remove(compiledKey(s))
}
