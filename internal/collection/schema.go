package collection

import (
	"context"
	"fmt"

	"github.com/aevon-lab/eventbridge/internal/schema"
)

// SchemaValidator resolves and compiles the named schema once and returns a
// Validator over it. Version 0 resolves to the latest active version.
func SchemaValidator(ctx context.Context, registry *schema.Registry, validator *schema.Validator, name string, version int) (Validator, error) {
	s, err := registry.Get(ctx, name, version)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema of %s: %w", name, err)
	}
	if _, err := validator.Compile(ctx, s); err != nil {
		return nil, err
	}
	return func(ctx context.Context, element map[string]interface{}) error {
		return validator.Validate(ctx, s, element)
	}, nil
}
