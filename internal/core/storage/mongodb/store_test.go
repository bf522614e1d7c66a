package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aevon-lab/eventbridge/internal/core/storage"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var loc = storage.Locator{URL: "mongodb://mock:27017/app", Collection: "tasks"}

func mockStore(mt *mtest.T) *Store {
	s := NewStore(Options{UsersURL: loc.URL})
	s.connect = func(context.Context, string) (*mongo.Client, error) { return mt.Client, nil }
	return s
}

func TestStore_WithMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upsert reports matched documents", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		applied, err := mockStore(mt).Upsert(context.Background(), loc, storage.Query{ID: "t-1", Version: "v1"},
			storage.Document{"title": "b", storage.FieldVersion: "v2"})
		require.NoError(mt, err)
		require.True(mt, applied)
	})

	mt.Run("stale version upsert is not applied", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		applied, err := mockStore(mt).Upsert(context.Background(), loc, storage.Query{ID: "t-1", Version: "stale"},
			storage.Document{"title": "b"})
		require.NoError(mt, err)
		require.False(mt, applied)
	})

	mt.Run("duplicate insert is not an error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		applied, err := mockStore(mt).Insert(context.Background(), loc, storage.Document{"_id": "t-1"})
		require.NoError(mt, err)
		require.False(mt, applied)
	})

	mt.Run("remove", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		applied, err := mockStore(mt).Remove(context.Background(), loc, storage.Query{ID: "t-1"})
		require.NoError(mt, err)
		require.True(mt, applied)
	})

	mt.Run("find one", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "app.tasks", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "t-1"},
			{Key: "title", Value: "a"},
			{Key: "tags", Value: bson.A{"x", "y"}},
			{Key: "meta", Value: bson.D{{Key: "k", Value: "v"}}},
		}))

		doc, err := mockStore(mt).FindOne(context.Background(), loc, storage.Query{ID: "t-1"})
		require.NoError(mt, err)
		require.Equal(mt, "t-1", doc["_id"])
		require.Equal(mt, "a", doc["title"])
		require.Equal(mt, []interface{}{"x", "y"}, doc["tags"])
		require.Equal(mt, map[string]interface{}{"k": "v"}, doc["meta"])
	})

	mt.Run("find one missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "app.tasks", mtest.FirstBatch))

		_, err := mockStore(mt).FindOne(context.Background(), loc, storage.Query{ID: "nope"})
		require.ErrorIs(mt, err, storage.ErrNotFound)
	})

	mt.Run("exists", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "app.tasks", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))

		ok, err := mockStore(mt).Exists(context.Background(), loc, storage.Query{ID: "t-1"})
		require.NoError(mt, err)
		require.True(mt, ok)
	})

	mt.Run("user by hashed token", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "app.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u-1"},
			{Key: "username", Value: "alice"},
			{Key: "roles", Value: bson.A{"admin"}},
		}))

		u, err := mockStore(mt).FindByHashedToken(context.Background(), "hash")
		require.NoError(mt, err)
		require.Equal(mt, "u-1", u.ID)
		require.Equal(mt, "alice", u.Username)
		require.Equal(mt, []string{"admin"}, u.Roles)
	})
}

func TestStore_FailedConnectIsRetried(t *testing.T) {
	attempts := 0
	s := NewStore(Options{})
	s.connect = func(context.Context, string) (*mongo.Client, error) {
		attempts++
		return nil, errors.New("server selection timeout")
	}

	_, err := s.Exists(context.Background(), loc, storage.Query{ID: "x"})
	require.Error(t, err)
	_, err = s.Exists(context.Background(), loc, storage.Query{ID: "x"})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestDatabaseName(t *testing.T) {
	require.Equal(t, "app", databaseName("mongodb://localhost:27017/app"))
	require.Equal(t, "app", databaseName("mongodb://user:pw@localhost:27017/app?authSource=admin"))
	require.Equal(t, defaultDatabase, databaseName("mongodb://localhost:27017"))
	require.Equal(t, defaultDatabase, databaseName("not a uri"))
}

func TestToBSONConvertsNumbers(t *testing.T) {
	doc := toBSON(storage.Document{
		"int":    json.Number("42"),
		"float":  json.Number("1.5"),
		"nested": map[string]interface{}{"n": json.Number("7")},
		"list":   []interface{}{json.Number("1"), "s"},
	})

	require.Equal(t, int64(42), doc["int"])
	require.Equal(t, 1.5, doc["float"])
	require.Equal(t, bson.M{"n": int64(7)}, doc["nested"])
	require.Equal(t, bson.A{int64(1), "s"}, doc["list"])
}

func TestIDString(t *testing.T) {
	oid := primitive.NewObjectID()
	require.Equal(t, oid.Hex(), idString(oid))
	require.Equal(t, "abc", idString("abc"))
	require.Equal(t, "", idString(nil))
}
