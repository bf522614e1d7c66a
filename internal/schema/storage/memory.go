package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/eventbridge/internal/schema"
)

// MemoryRepository keeps schemas in memory. Used by tests and by
// collections whose schema is inlined in config.
type MemoryRepository struct {
	mu      sync.RWMutex
	schemas map[schema.Key]schema.Schema
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{schemas: make(map[schema.Key]schema.Schema)}
}

func (r *MemoryRepository) Create(_ context.Context, s *schema.Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.Key()]; exists {
		return schema.ErrAlreadyExists
	}
	r.schemas[s.Key()] = *s
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, key schema.Key) (*schema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.schemas[key]
	if !exists {
		return nil, schema.ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) List(_ context.Context, collection string) ([]*schema.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*schema.Schema
	for _, s := range r.schemas {
		if collection != "" && s.Collection != collection {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (r *MemoryRepository) UpdateState(_ context.Context, key schema.Key, state schema.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.schemas[key]
	if !exists {
		return schema.ErrNotFound
	}
	s.State = state
	if state == schema.StateDeprecated {
		now := time.Now().UTC()
		s.DeprecatedAt = &now
	}
	r.schemas[key] = s
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key schema.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[key]; !exists {
		return schema.ErrNotFound
	}
	delete(r.schemas, key)
	return nil
}
