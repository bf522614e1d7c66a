package memory

import (
	"context"
	"sync"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
)

// Store is an in-memory storage.Store and auth user store.
// Used by tests and by the "memory" store driver for local development.
type Store struct {
	mu    sync.RWMutex
	dbs   map[string]map[string]map[string]storage.Document // url -> collection -> id -> doc
	users map[string]*v1.User                               // hashed token -> user
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		dbs:   make(map[string]map[string]map[string]storage.Document),
		users: make(map[string]*v1.User),
	}
}

func (s *Store) collection(loc storage.Locator, create bool) map[string]storage.Document {
	db, ok := s.dbs[loc.URL]
	if !ok {
		if !create {
			return nil
		}
		db = make(map[string]map[string]storage.Document)
		s.dbs[loc.URL] = db
	}
	coll, ok := db[loc.Collection]
	if !ok && create {
		coll = make(map[string]storage.Document)
		db[loc.Collection] = coll
	}
	return coll
}

func matches(doc storage.Document, q storage.Query) bool {
	if doc == nil {
		return false
	}
	if q.Version == "" {
		return true
	}
	v, _ := doc[storage.FieldVersion].(string)
	return v == q.Version
}

func copyDoc(doc storage.Document) storage.Document {
	return storage.Document(v1.CloneElement(doc))
}

func (s *Store) Upsert(_ context.Context, loc storage.Locator, q storage.Query, doc storage.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(loc, true)
	if q.Version != "" && !matches(coll[q.ID], q) {
		return false, nil
	}
	d := copyDoc(doc)
	d["_id"] = q.ID
	coll[q.ID] = d
	return true, nil
}

func (s *Store) Insert(_ context.Context, loc storage.Locator, doc storage.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := doc["_id"].(string)
	coll := s.collection(loc, true)
	if _, exists := coll[id]; exists {
		return false, nil
	}
	coll[id] = copyDoc(doc)
	return true, nil
}

func (s *Store) Remove(_ context.Context, loc storage.Locator, q storage.Query) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(loc, false)
	if !matches(coll[q.ID], q) {
		return false, nil
	}
	delete(coll, q.ID)
	return true, nil
}

func (s *Store) FindOne(_ context.Context, loc storage.Locator, q storage.Query) (storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := s.collection(loc, false)[q.ID]
	if !matches(doc, q) {
		return nil, storage.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *Store) Exists(_ context.Context, loc storage.Locator, q storage.Query) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return matches(s.collection(loc, false)[q.ID], q), nil
}

func (s *Store) Close() error { return nil }

// AddUser registers a user under a hashed login token.
func (s *Store) AddUser(hashedToken string, user v1.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[hashedToken] = &user
}

// FindByHashedToken returns the user owning the hashed token, or storage.ErrNotFound.
func (s *Store) FindByHashedToken(_ context.Context, hashedToken string) (*v1.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[hashedToken]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp, nil
}
