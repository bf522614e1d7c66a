package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultCacheCapacity is the default number of schemas to cache.
const DefaultCacheCapacity = 1000

// Registry looks schemas up through an LRU cache in front of a repository.
type Registry struct {
	repo  Repository
	cache *lru[Key, Schema]
}

// NewRegistry creates a registry with the default cache capacity.
func NewRegistry(repo Repository) *Registry {
	return NewRegistryWithCache(repo, DefaultCacheCapacity)
}

func NewRegistryWithCache(repo Repository, cacheCapacity int) *Registry {
	return &Registry{repo: repo, cache: newLRU[Key, Schema](cacheCapacity)}
}

// Get returns version of the collection's schema. Version 0 resolves to the
// highest active version. Deprecated versions stay reachable when pinned.
func (r *Registry) Get(ctx context.Context, collection string, version int) (*Schema, error) {
	if version == 0 {
		return r.Latest(ctx, collection)
	}

	key := Key{Collection: collection, Version: version}
	if s, ok := r.cache.get(key); ok {
		return &s, nil
	}

	s, err := r.repo.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", key, err)
	}
	if s.State == StateDeprecated {
		slog.Warn("[Schema] Using deprecated schema", "collection", collection, "version", version)
	}

	r.cache.put(key, *s)
	return s, nil
}

// Latest returns the highest active version of the collection's schema.
// Latest is not cached; callers resolve it once at startup.
func (r *Registry) Latest(ctx context.Context, collection string) (*Schema, error) {
	all, err := r.repo.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas of %s: %w", collection, err)
	}

	var latest *Schema
	for _, s := range all {
		if s.State != StateActive {
			continue
		}
		if latest == nil || s.Version > latest.Version {
			latest = s
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no active version for %s", ErrNotFound, collection)
	}
	r.cache.put(latest.Key(), *latest)
	return latest, nil
}

// Register creates a new schema version.
func (r *Registry) Register(ctx context.Context, collection string, version int, format Format, definition []byte, strictMode bool) (*Schema, error) {
	if collection == "" {
		return nil, errors.New("collection is required")
	}
	if version < 1 {
		return nil, errors.New("version must be >= 1")
	}
	if len(definition) == 0 {
		return nil, errors.New("definition is required")
	}

	s := &Schema{
		ID:          uuid.New().String(),
		Collection:  collection,
		Version:     version,
		Format:      format,
		Definition:  definition,
		Fingerprint: ComputeFingerprint(definition),
		State:       StateActive,
		StrictMode:  strictMode,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, err
	}

	r.cache.put(s.Key(), *s)
	return s, nil
}

// Deprecate removes a version from latest resolution.
func (r *Registry) Deprecate(ctx context.Context, collection string, version int) error {
	key := Key{Collection: collection, Version: version}
	if err := r.repo.UpdateState(ctx, key, StateDeprecated); err != nil {
		return err
	}
	r.cache.remove(key)
	return nil
}

// List returns every version of the collection's schema.
func (r *Registry) List(ctx context.Context, collection string) ([]*Schema, error) {
	return r.repo.List(ctx, collection)
}
