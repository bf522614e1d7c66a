package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindOne when no document matches the query.
var ErrNotFound = errors.New("document not found")

// Reserved document keys. Element fields never use them, so the concurrency token
// cannot collide with user data.
const (
	FieldID      = "_id"
	FieldVersion = "_version"
)

// Locator addresses one collection of one store deployment.
type Locator struct {
	// URL is the connection string of the store. Connections are cached per URL.
	URL string

	// Collection is the store-side collection (or table partition) name.
	Collection string
}

// Query selects a single document by id, optionally guarded by its content version.
type Query struct {
	ID string

	// Version, when non-empty, restricts the match to documents whose stored version equals it.
	Version string
}

// Document is a materialized entity: the element fields plus FieldID and, for versioned
// collections, FieldVersion.
type Document map[string]interface{}

// Store is the read-store adapter the pipeline and the projection consumer work against.
//
// All methods are safe for concurrent use. Conditional writes (a Query with Version) are the
// only concurrency control; a condition that does not match reports applied=false, not an error.
type Store interface {
	// Upsert writes doc under q.ID. Without a version it inserts or replaces;
	// with a version it replaces only a document whose stored version matches.
	Upsert(ctx context.Context, loc Locator, q Query, doc Document) (applied bool, err error)

	// Insert writes doc only if no document with its "_id" exists yet.
	Insert(ctx context.Context, loc Locator, doc Document) (applied bool, err error)

	// Remove deletes the document matching q.
	Remove(ctx context.Context, loc Locator, q Query) (applied bool, err error)

	// FindOne returns the document matching q, or ErrNotFound.
	FindOne(ctx context.Context, loc Locator, q Query) (Document, error)

	// Exists reports whether at least one document matches q.
	Exists(ctx context.Context, loc Locator, q Query) (bool, error)

	// Close releases every cached connection.
	Close() error
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
