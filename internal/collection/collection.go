// Package collection implements the write path of a collection: validate,
// authenticate, authorize and dispatch a request, then publish the resulting event.
package collection

import (
	"context"
	"fmt"

	"github.com/aevon-lab/eventbridge/internal/auth"
	"github.com/aevon-lab/eventbridge/internal/core/partition"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
)

// Validator checks an element, without its id keys, against the collection's contract.
// Errors implementing schema.ValidationDetailer surface their details to the caller.
type Validator func(ctx context.Context, element map[string]interface{}) error

// Collection is the immutable configuration a pipeline and a projection share.
type Collection struct {
	Name       string
	StreamName string
	Store      storage.Locator

	// Versioned enables content versions: replace and remove must name the version
	// they expect, and projections apply them conditionally.
	Versioned bool

	// PartitionByEntity appends the entity id to the partition key. Events of one
	// entity stay ordered; events across entities may not.
	PartitionByEntity bool

	Validate  Validator
	Authorize auth.Predicate
}

// PartitionKey returns the log partition key of events about entityID.
func (c *Collection) PartitionKey(entityID string) string {
	return partition.Key(c.Name, entityID, c.PartitionByEntity)
}

// Config is the per-collection section of the service config.
type Config struct {
	Name              string            `koanf:"name"`
	Stream            string            `koanf:"stream"`
	StoreURL          string            `koanf:"store_url"`
	StoreCollection   string            `koanf:"store_collection"`
	Versioned         bool              `koanf:"versioned"`
	PartitionByEntity bool              `koanf:"partition_by_entity"`
	Schema            SchemaConfig      `koanf:"schema"`
	Authorize         auth.PolicyConfig `koanf:"authorize"`
}

// SchemaConfig selects the element schema. Version 0 means the latest active one.
type SchemaConfig struct {
	Enabled bool `koanf:"enabled"`
	Version int  `koanf:"version"`
}

// Validate reports config errors that would make the collection unusable.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.Schema.Version < 0 {
		return fmt.Errorf("collection %s: schema version must be >= 0", c.Name)
	}
	return nil
}

// FromConfig builds a collection. The stream and store collection default to the
// collection name; the store URL defaults to storeURL.
func FromConfig(cfg Config, storeURL string, validate Validator) *Collection {
	c := &Collection{
		Name:              cfg.Name,
		StreamName:        cfg.Stream,
		Store:             storage.Locator{URL: cfg.StoreURL, Collection: cfg.StoreCollection},
		Versioned:         cfg.Versioned,
		PartitionByEntity: cfg.PartitionByEntity,
		Validate:          validate,
		Authorize:         auth.NewPolicy(cfg.Authorize).Predicate(),
	}
	if c.StreamName == "" {
		c.StreamName = cfg.Name
	}
	if c.Store.URL == "" {
		c.Store.URL = storeURL
	}
	if c.Store.Collection == "" {
		c.Store.Collection = cfg.Name
	}
	return c
}
