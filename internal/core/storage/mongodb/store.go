package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultDatabase        = "eventbridge"
	defaultUsersCollection = "users"
	defaultConnectTimeout  = 10 * time.Second

	// hashedTokenField locates login token hashes inside user documents.
	hashedTokenField = "services.resume.loginTokens.hashedToken"
)

// Options configures the store.
type Options struct {
	// UsersURL is the connection string of the deployment holding the users collection.
	UsersURL        string
	UsersCollection string
	ConnectTimeout  time.Duration
}

// userDB is the subset of a user document needed to build a principal.
type userDB struct {
	ID       interface{} `bson:"_id"`
	Username string      `bson:"username"`
	Roles    []string    `bson:"roles"`
}

// Store implements storage.Store on MongoDB.
//
// One client is connected per connection string on first use and cached until Close.
// The database is taken from the connection string path, "eventbridge" when absent.
type Store struct {
	opts    Options
	connect func(ctx context.Context, uri string) (*mongo.Client, error)

	mu      sync.Mutex
	clients map[string]*mongo.Client
}

// NewStore creates a store. No client is connected until the first call.
func NewStore(opts Options) *Store {
	if opts.UsersCollection == "" {
		opts.UsersCollection = defaultUsersCollection
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	s := &Store{opts: opts, clients: make(map[string]*mongo.Client)}
	s.connect = s.dial
	return s
}

func (s *Store) dial(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// client returns the cached client for uri, connecting when needed.
// A failed connect is not cached.
func (s *Store) client(ctx context.Context, uri string) (*mongo.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[uri]; ok {
		return c, nil
	}
	c, err := s.connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	s.clients[uri] = c
	slog.Info("[Mongo] Client connected", "database", databaseName(uri))
	return c, nil
}

func (s *Store) collection(ctx context.Context, uri, name string) (*mongo.Collection, error) {
	c, err := s.client(ctx, uri)
	if err != nil {
		return nil, err
	}
	return c.Database(databaseName(uri)).Collection(name), nil
}

func databaseName(uri string) string {
	cs, err := connstring.Parse(uri)
	if err != nil || cs.Database == "" {
		return defaultDatabase
	}
	return cs.Database
}

func filter(q storage.Query) bson.M {
	f := bson.M{storage.FieldID: q.ID}
	if q.Version != "" {
		f[storage.FieldVersion] = q.Version
	}
	return f
}

func (s *Store) Upsert(ctx context.Context, loc storage.Locator, q storage.Query, doc storage.Document) (bool, error) {
	coll, err := s.collection(ctx, loc.URL, loc.Collection)
	if err != nil {
		return false, err
	}

	replacement := toBSON(doc)
	replacement["_id"] = q.ID

	// A versioned replace must never create the document.
	opts := options.Replace().SetUpsert(q.Version == "")
	res, err := coll.ReplaceOne(ctx, filter(q), replacement, opts)
	if err != nil {
		return false, fmt.Errorf("failed to upsert document: %w", err)
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}

func (s *Store) Insert(ctx context.Context, loc storage.Locator, doc storage.Document) (bool, error) {
	coll, err := s.collection(ctx, loc.URL, loc.Collection)
	if err != nil {
		return false, err
	}
	if _, err := coll.InsertOne(ctx, toBSON(doc)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert document: %w", err)
	}
	return true, nil
}

func (s *Store) Remove(ctx context.Context, loc storage.Locator, q storage.Query) (bool, error) {
	coll, err := s.collection(ctx, loc.URL, loc.Collection)
	if err != nil {
		return false, err
	}
	res, err := coll.DeleteOne(ctx, filter(q))
	if err != nil {
		return false, fmt.Errorf("failed to remove document: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) FindOne(ctx context.Context, loc storage.Locator, q storage.Query) (storage.Document, error) {
	coll, err := s.collection(ctx, loc.URL, loc.Collection)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := coll.FindOne(ctx, filter(q)).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return storage.Document(fromBSON(raw).(map[string]interface{})), nil
}

func (s *Store) Exists(ctx context.Context, loc storage.Locator, q storage.Query) (bool, error) {
	coll, err := s.collection(ctx, loc.URL, loc.Collection)
	if err != nil {
		return false, err
	}
	n, err := coll.CountDocuments(ctx, filter(q), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count documents: %w", err)
	}
	return n > 0, nil
}

// FindByHashedToken resolves a hashed login token against the users collection.
// Returns storage.ErrNotFound when no user holds the token.
func (s *Store) FindByHashedToken(ctx context.Context, hashedToken string) (*v1.User, error) {
	coll, err := s.collection(ctx, s.opts.UsersURL, s.opts.UsersCollection)
	if err != nil {
		return nil, err
	}

	var u userDB
	err = coll.FindOne(ctx, bson.M{hashedTokenField: hashedToken}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by token: %w", err)
	}

	return &v1.User{ID: idString(u.ID), Username: u.Username, Roles: u.Roles}, nil
}

// Ping checks that the deployment behind uri is reachable, connecting when needed.
func (s *Store) Ping(ctx context.Context, uri string) error {
	c, err := s.client(ctx, uri)
	if err != nil {
		return err
	}
	return c.Ping(ctx, readpref.Primary())
}

// Close disconnects every cached client.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for uri, c := range s.clients {
		if err := c.Disconnect(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect mongodb client: %w", err))
		}
		delete(s.clients, uri)
	}
	return errors.Join(errs...)
}

func idString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// toBSON converts a decoded JSON element into a BSON document. json.Number values
// become int64 when integral and float64 otherwise; BSON has no arbitrary-precision number.
func toBSON(doc storage.Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = toBSONValue(v)
	}
	return out
}

func toBSONValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		return toBSON(t)
	case []interface{}:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = toBSONValue(e)
		}
		return out
	default:
		return v
	}
}

// fromBSON turns driver types back into plain maps and slices.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
