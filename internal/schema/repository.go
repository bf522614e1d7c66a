package schema

import "context"

// Repository stores schema versions.
type Repository interface {
	// Create stores a new schema. Returns ErrAlreadyExists if the
	// (Collection, Version) pair is taken.
	Create(ctx context.Context, s *Schema) error

	// Get returns ErrNotFound when the version does not exist.
	Get(ctx context.Context, key Key) (*Schema, error)

	// List returns the schemas of a collection, or of every collection when it is empty.
	List(ctx context.Context, collection string) ([]*Schema, error)

	UpdateState(ctx context.Context, key Key, state State) error

	Delete(ctx context.Context, key Key) error
}
