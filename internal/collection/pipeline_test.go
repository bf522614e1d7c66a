package collection

import (
	"context"
	"errors"
	"net/http"
	"testing"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/auth"
	"github.com/aevon-lab/eventbridge/internal/core/codec"
	apperrors "github.com/aevon-lab/eventbridge/internal/core/errors"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
	authmocks "github.com/aevon-lab/eventbridge/internal/mocks/auth"
	storagemocks "github.com/aevon-lab/eventbridge/internal/mocks/storage"
	streammocks "github.com/aevon-lab/eventbridge/internal/mocks/stream"
	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var tasksLoc = storage.Locator{URL: "mongodb://store", Collection: "tasks"}

func tasks() *Collection {
	return &Collection{Name: "tasks", StreamName: "task-events", Store: tasksLoc}
}

type fixture struct {
	store     *storagemocks.Store
	publisher *streammocks.Publisher
	users     *authmocks.UserStore
	published [][]byte
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		store:     storagemocks.NewStore(t),
		publisher: streammocks.NewPublisher(t),
		users:     authmocks.NewUserStore(t),
	}
}

func (f *fixture) pipeline(c *Collection) *Pipeline {
	return NewPipeline(c, f.store, f.users, f.publisher)
}

func (f *fixture) expectPublish(partitionKey, streamName string) {
	f.publisher.EXPECT().
		Publish(mock.Anything, partitionKey, streamName, mock.Anything).
		Run(func(_ context.Context, _, _ string, payload []byte) {
			f.published = append(f.published, payload)
		}).
		Return(nil).
		Once()
}

func (f *fixture) event(t *testing.T, i int) v1.EventRecord {
	t.Helper()
	require.Greater(t, len(f.published), i)
	rec, err := codec.Decode(f.published[i])
	require.NoError(t, err)
	return rec
}

func requireRequestError(t *testing.T, err error, code int, details interface{}) {
	t.Helper()
	re, ok := apperrors.AsRequestError(err)
	require.True(t, ok, "expected RequestError, got %T: %v", err, err)
	require.Equal(t, code, re.Code)
	require.Equal(t, details, re.Details)
}

func TestInsert_GeneratesIDAndPublishes(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, mock.AnythingOfType("storage.Query")).Return(false, nil).Once()
	f.expectPublish("tasks", "task-events")

	res, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
		Method:  v1.MethodInsert,
		Element: map[string]interface{}{"title": "write docs"},
	})
	require.NoError(t, err)
	_, parseErr := uuid.Parse(res.ID)
	require.NoError(t, parseErr)

	rec := f.event(t, 0)
	require.Equal(t, v1.KindInserted, rec.Kind)
	require.Equal(t, "tasks", rec.Collection)
	require.Equal(t, res.ID, rec.Data.ID)
	require.Equal(t, map[string]interface{}{"title": "write docs"}, rec.Data.Element)
	require.Empty(t, rec.Data.Version)
}

func TestInsert_UsesClientIDAndStripsIt(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(false, nil).Once()
	f.expectPublish("tasks", "task-events")

	res, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
		Method:  v1.MethodInsert,
		Element: map[string]interface{}{"_id": "t-1", "title": "a"},
	})
	require.NoError(t, err)
	require.Equal(t, "t-1", res.ID)
	require.NotContains(t, f.event(t, 0).Data.Element, "_id")
}

func TestInsert_ConflictDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()

	_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
		Method:  v1.MethodInsert,
		Element: map[string]interface{}{"id": "t-1"},
	})
	requireRequestError(t, err, http.StatusConflict, "element t-1 already exists")
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReplace(t *testing.T) {
	t.Run("missing entity", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-9"}).Return(false, nil).Once()

		_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
			Method: v1.MethodReplace, ElementID: "t-9", Element: map[string]interface{}{"title": "b"},
		})
		requireRequestError(t, err, http.StatusNotFound, "element t-9 not found")
	})

	t.Run("strips ids and returns nothing", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.expectPublish("tasks", "task-events")

		res, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
			Method: v1.MethodReplace, ElementID: "t-1",
			Element: map[string]interface{}{"id": "t-1", "_id": "t-1", "title": "b"},
		})
		require.NoError(t, err)
		require.Nil(t, res)

		rec := f.event(t, 0)
		require.Equal(t, v1.KindReplaced, rec.Kind)
		require.Equal(t, "t-1", rec.Data.ID)
		require.Equal(t, map[string]interface{}{"title": "b"}, rec.Data.Element)
	})
}

func TestRemove(t *testing.T) {
	t.Run("missing entity", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-9"}).Return(false, nil).Once()

		_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-9"})
		requireRequestError(t, err, http.StatusNotFound, "element t-9 not found")
	})

	t.Run("publishes removal", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.expectPublish("tasks", "task-events")

		res, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1"})
		require.NoError(t, err)
		require.Nil(t, res)

		rec := f.event(t, 0)
		require.Equal(t, v1.KindRemoved, rec.Kind)
		require.Nil(t, rec.Data.Element)
	})
}

func TestUnsupportedMethod(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: "HEAD"})
	requireRequestError(t, err, http.StatusBadRequest, "Unsupported method HEAD")

	re, _ := apperrors.AsRequestError(err)
	require.Equal(t, apperrors.MethodErrorName, re.Message)
}

func TestLegacyVerbs(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(false, nil).Once()
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-2"}).Return(true, nil).Twice()
	f.expectPublish("tasks", "task-events")
	f.expectPublish("tasks", "task-events")
	f.expectPublish("tasks", "task-events")
	p := f.pipeline(tasks())
	ctx := context.Background()

	res, err := p.Handle(ctx, v1.Request{Method: http.MethodPost, Body: map[string]interface{}{"id": "t-1", "title": "a"}})
	require.NoError(t, err)
	require.Equal(t, "t-1", res.ID)

	_, err = p.Handle(ctx, v1.Request{Method: http.MethodPut, Body: map[string]interface{}{"_id": "t-2", "title": "b"}})
	require.NoError(t, err)

	_, err = p.Handle(ctx, v1.Request{Method: http.MethodDelete, Body: "t-2"})
	require.NoError(t, err)

	require.Equal(t, v1.KindInserted, f.event(t, 0).Kind)
	require.Equal(t, v1.KindReplaced, f.event(t, 1).Kind)
	require.Equal(t, v1.KindRemoved, f.event(t, 2).Kind)
}

func TestStagesRunInOrderOnOneCollection(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, mock.Anything).Return(false, nil).Once()
	f.expectPublish("tasks", "task-events")

	c := tasks()
	p := f.pipeline(c)

	var calls []string
	names := []string{"validate", "authenticate", "authorize", "dispatch"}
	for i, stage := range p.stages {
		i, stage := i, stage
		p.stages[i] = func(ctx context.Context, got *Collection, s *Step) error {
			require.Same(t, c, got)
			calls = append(calls, names[i]+":start")
			err := stage(ctx, got, s)
			calls = append(calls, names[i]+":done")
			return err
		}
	}

	_, err := p.Handle(context.Background(), v1.Request{Method: v1.MethodInsert, Element: map[string]interface{}{"title": "a"}})
	require.NoError(t, err)
	require.Equal(t, []string{
		"validate:start", "validate:done",
		"authenticate:start", "authenticate:done",
		"authorize:start", "authorize:done",
		"dispatch:start", "dispatch:done",
	}, calls)
}

func TestStagesShortCircuit(t *testing.T) {
	f := newFixture(t)
	c := tasks()
	c.Validate = func(context.Context, map[string]interface{}) error { return errors.New("title is required") }
	c.Authorize = func(context.Context, v1.Request) error {
		t.Fatal("authorize must not run after a validation failure")
		return nil
	}

	_, err := f.pipeline(c).Handle(context.Background(), v1.Request{Method: v1.MethodInsert, Element: map[string]interface{}{}})
	requireRequestError(t, err, http.StatusBadRequest, "title is required")
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	c := tasks()
	var seen map[string]interface{}
	c.Validate = func(_ context.Context, element map[string]interface{}) error {
		seen = element
		return &schema.MultiValidationError{Errors: []*schema.ValidationError{
			{Collection: "tasks", Version: 1, Field: "title", Message: "required field is missing"},
		}}
	}

	_, err := f.pipeline(c).Handle(context.Background(), v1.Request{
		Method: v1.MethodInsert, Element: map[string]interface{}{"id": "t-1", "done": true},
	})
	requireRequestError(t, err, http.StatusBadRequest, map[string]interface{}{
		"fields": map[string]string{"title": "required field is missing"},
	})
	require.Equal(t, map[string]interface{}{"done": true}, seen)

	_, err = f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodInsert})
	requireRequestError(t, err, http.StatusBadRequest, "element is required")

	_, err = f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove})
	requireRequestError(t, err, http.StatusBadRequest, "elementId is required")
}

func TestVersionedCollection(t *testing.T) {
	versioned := func() *Collection {
		c := tasks()
		c.Versioned = true
		return c
	}

	t.Run("version required", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pipeline(versioned()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1"})
		requireRequestError(t, err, http.StatusBadRequest, "version is required")
	})

	t.Run("stale version", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1", Version: "old"}).Return(false, nil).Once()

		_, err := f.pipeline(versioned()).Handle(context.Background(), v1.Request{
			Method: v1.MethodReplace, ElementID: "t-1", Version: "old", Element: map[string]interface{}{"title": "b"},
		})
		requireRequestError(t, err, http.StatusConflict, "stale version")
	})

	t.Run("current version is carried on the event", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1", Version: "v1"}).Return(true, nil).Once()
		f.expectPublish("tasks", "task-events")

		_, err := f.pipeline(versioned()).Handle(context.Background(), v1.Request{
			Method: v1.MethodRemove, ElementID: "t-1", Version: "v1",
		})
		require.NoError(t, err)
		require.Equal(t, "v1", f.event(t, 0).Data.Version)
	})

	t.Run("unversioned collections drop the version", func(t *testing.T) {
		f := newFixture(t)
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.expectPublish("tasks", "task-events")

		_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{
			Method: v1.MethodRemove, ElementID: "t-1", Version: "v1",
		})
		require.NoError(t, err)
		require.Empty(t, f.event(t, 0).Data.Version)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().FindByHashedToken(mock.Anything, auth.HashToken("nope")).Return(nil, storage.ErrNotFound).Once()

		_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1", Token: "nope"})
		requireRequestError(t, err, http.StatusUnauthorized, "Invalid token")
	})

	t.Run("user is attached for authorization only", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().FindByHashedToken(mock.Anything, auth.HashToken("tok")).Return(&v1.User{ID: "u-1", Roles: []string{"editor"}}, nil).Once()
		f.store.EXPECT().Exists(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).Return(true, nil).Once()
		f.expectPublish("tasks", "task-events")

		c := tasks()
		c.Authorize = func(_ context.Context, req v1.Request) error {
			require.Equal(t, "u-1", req.User.ID)
			req.Element["title"] = "tampered"
			req.User.Roles[0] = "admin"
			return nil
		}

		_, err := f.pipeline(c).Handle(context.Background(), v1.Request{
			Method: v1.MethodReplace, ElementID: "t-1", Token: "tok", Element: map[string]interface{}{"title": "b"},
		})
		require.NoError(t, err)
		require.Equal(t, "b", f.event(t, 0).Data.Element["title"])
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.users.EXPECT().FindByHashedToken(mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

		_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1", Token: "tok"})
		requireRequestError(t, err, http.StatusInternalServerError, nil)
	})

	t.Run("no user store rejects tokens", func(t *testing.T) {
		f := newFixture(t)
		_, err := NewPipeline(tasks(), f.store, nil, f.publisher).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1", Token: "tok"})
		requireRequestError(t, err, http.StatusUnauthorized, "Invalid token")
	})
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	c := tasks()
	c.Authorize = auth.NewPolicy(auth.PolicyConfig{Roles: map[string][]string{"remove": {"editor"}}}).Predicate()

	_, err := f.pipeline(c).Handle(context.Background(), v1.Request{Method: v1.MethodRemove, ElementID: "t-1"})
	requireRequestError(t, err, http.StatusForbidden, "anonymous requests are not allowed to remove")
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, mock.Anything).Return(false, nil).Once()
	f.publisher.EXPECT().Publish(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down: 10.0.0.7:9092")).Once()

	_, err := f.pipeline(tasks()).Handle(context.Background(), v1.Request{Method: v1.MethodInsert, Element: map[string]interface{}{"title": "a"}})
	requireRequestError(t, err, http.StatusInternalServerError, nil)
	require.NotContains(t, err.Error(), "10.0.0.7")
}

func TestPartitionByEntity(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Exists(mock.Anything, tasksLoc, mock.Anything).Return(false, nil).Once()
	f.expectPublish("tasks/t-1", "task-events")

	c := tasks()
	c.PartitionByEntity = true
	_, err := f.pipeline(c).Handle(context.Background(), v1.Request{Method: v1.MethodInsert, Element: map[string]interface{}{"id": "t-1"}})
	require.NoError(t, err)
}

func TestFindOne(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().FindOne(mock.Anything, tasksLoc, storage.Query{ID: "t-1"}).
		Return(storage.Document{"_id": "t-1", "_version": "abc", "title": "a", "version": "1.24"}, nil).Twice()
	f.store.EXPECT().FindOne(mock.Anything, tasksLoc, storage.Query{ID: "t-9"}).Return(nil, storage.ErrNotFound).Once()
	f.store.EXPECT().FindOne(mock.Anything, tasksLoc, storage.Query{ID: "t-5"}).Return(nil, errors.New("timeout")).Once()

	got, version, err := f.pipeline(tasks()).FindOne(context.Background(), "t-1")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"id": "t-1", "title": "a", "version": "1.24"}, got)
	require.Empty(t, version)

	c := tasks()
	c.Versioned = true
	got, version, err = f.pipeline(c).FindOne(context.Background(), "t-1")
	require.NoError(t, err)
	require.Equal(t, "abc", version)
	require.Equal(t, "1.24", got["version"])

	_, _, err = f.pipeline(tasks()).FindOne(context.Background(), "t-9")
	requireRequestError(t, err, http.StatusNotFound, "element t-9 not found")

	_, _, err = f.pipeline(tasks()).FindOne(context.Background(), "t-5")
	requireRequestError(t, err, http.StatusInternalServerError, nil)
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(Config{Name: "tasks"}, "mongodb://store", nil)
	require.Equal(t, "tasks", c.StreamName)
	require.Equal(t, storage.Locator{URL: "mongodb://store", Collection: "tasks"}, c.Store)
	require.NoError(t, c.Authorize(context.Background(), v1.Request{Method: v1.MethodRemove}))

	c = FromConfig(Config{Name: "tasks", Stream: "events", StoreURL: "postgres://x", StoreCollection: "todo", Versioned: true}, "mongodb://store", nil)
	require.Equal(t, "events", c.StreamName)
	require.Equal(t, storage.Locator{URL: "postgres://x", Collection: "todo"}, c.Store)
	require.True(t, c.Versioned)

	require.Error(t, Config{}.Validate())
	require.Error(t, Config{Name: "tasks", Schema: SchemaConfig{Version: -1}}.Validate())
}
