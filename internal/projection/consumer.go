// Package projection materializes logged events into the read store.
package projection

import (
	"context"
	"fmt"
	"log/slog"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/collection"
	"github.com/aevon-lab/eventbridge/internal/core/codec"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/google/uuid"
)

// Consumer applies the events of one or more collections to the read store.
// It implements stream.BatchHandler.
type Consumer struct {
	store       storage.Store
	collections map[string]*collection.Collection
	newID       func() string
}

// NewConsumer creates a consumer for colls. Records of other collections are skipped.
func NewConsumer(store storage.Store, colls ...*collection.Collection) *Consumer {
	byName := make(map[string]*collection.Collection, len(colls))
	for _, c := range colls {
		byName[c.Name] = c
	}
	return &Consumer{
		store:       store,
		collections: byName,
		newID:       func() string { return uuid.New().String() },
	}
}

// Streams lists the distinct stream names of the consumer's collections.
func (c *Consumer) Streams() []string {
	seen := make(map[string]struct{}, len(c.collections))
	var out []string
	for _, coll := range c.collections {
		if _, ok := seen[coll.StreamName]; ok {
			continue
		}
		seen[coll.StreamName] = struct{}{}
		out = append(out, coll.StreamName)
	}
	return out
}

// HandleBatch applies records in order. It stops at the first store failure and
// returns how many records were handled before it. Malformed records and records of
// unknown collections count as handled.
func (c *Consumer) HandleBatch(ctx context.Context, records []stream.Record) (int, error) {
	for i, r := range records {
		rec, err := codec.Decode(r.Data)
		if err != nil {
			slog.Warn("[Projection] Skipping malformed record",
				"stream", r.Stream,
				"sequence_number", r.SequenceNumber,
				"error", err)
			continue
		}

		coll, ok := c.collections[rec.Collection]
		if !ok {
			slog.Debug("[Projection] Skipping record of unknown collection",
				"stream", r.Stream,
				"collection", rec.Collection)
			continue
		}

		if err := c.apply(ctx, coll, rec); err != nil {
			slog.Error("[Projection] Failed to apply event",
				"collection", coll.Name,
				"event_id", rec.ID,
				"kind", rec.Kind.String(),
				"sequence_number", r.SequenceNumber,
				"error", err)
			return i, err
		}
	}
	return len(records), nil
}

func (c *Consumer) apply(ctx context.Context, coll *collection.Collection, rec v1.EventRecord) error {
	var (
		applied bool
		err     error
	)
	switch rec.Kind {
	case v1.KindInserted:
		applied, err = c.insert(ctx, coll, rec.Data)
	case v1.KindReplaced:
		applied, err = c.replace(ctx, coll, rec.Data)
	case v1.KindRemoved:
		applied, err = c.store.Remove(ctx, coll.Store, storage.Query{ID: rec.Data.ID, Version: rec.Data.Version})
		if err != nil {
			err = fmt.Errorf("failed to remove %s: %w", rec.Data.ID, err)
		}
	default:
		return fmt.Errorf("unknown event kind %d", rec.Kind)
	}
	if err != nil {
		return err
	}

	if !applied {
		slog.Debug("[Projection] Event not applied",
			"collection", coll.Name,
			"event_id", rec.ID,
			"kind", rec.Kind.String(),
			"entity_id", rec.Data.ID,
			"version", rec.Data.Version)
	}
	return nil
}

func (c *Consumer) insert(ctx context.Context, coll *collection.Collection, data v1.EventData) (bool, error) {
	id := data.ID
	if id == "" {
		id = c.newID()
	}
	doc, err := document(coll, id, data.Element)
	if err != nil {
		return false, err
	}

	if coll.Versioned {
		applied, err := c.store.Insert(ctx, coll.Store, doc)
		if err != nil {
			return false, fmt.Errorf("failed to insert %s: %w", id, err)
		}
		return applied, nil
	}

	applied, err := c.store.Upsert(ctx, coll.Store, storage.Query{ID: id}, doc)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s: %w", id, err)
	}
	return applied, nil
}

func (c *Consumer) replace(ctx context.Context, coll *collection.Collection, data v1.EventData) (bool, error) {
	doc, err := document(coll, data.ID, data.Element)
	if err != nil {
		return false, err
	}
	applied, err := c.store.Upsert(ctx, coll.Store, storage.Query{ID: data.ID, Version: data.Version}, doc)
	if err != nil {
		return false, fmt.Errorf("failed to replace %s: %w", data.ID, err)
	}
	return applied, nil
}

// document builds the stored form of element: its fields plus the reserved id and, for
// versioned collections, the content version.
func document(coll *collection.Collection, id string, element map[string]interface{}) (storage.Document, error) {
	doc := make(storage.Document, len(element)+2)
	for k, v := range v1.StripID(element) {
		if k == storage.FieldVersion {
			continue
		}
		doc[k] = v
	}
	doc[storage.FieldID] = id

	if coll.Versioned {
		version, err := codec.ContentVersion(element)
		if err != nil {
			return nil, err
		}
		doc[storage.FieldVersion] = version
	}
	return doc, nil
}

var _ stream.BatchHandler = (*Consumer)(nil)
