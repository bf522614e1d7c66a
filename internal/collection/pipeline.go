package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/auth"
	"github.com/aevon-lab/eventbridge/internal/core/codec"
	apperrors "github.com/aevon-lab/eventbridge/internal/core/errors"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/google/uuid"
)

// Result is returned by a successful insert.
type Result struct {
	ID string `json:"id"`
}

// Step is the state one request carries through the stages.
type Step struct {
	Request v1.Request
	Result  *Result
}

// Stage is one step of the write path. Returning an error stops the pipeline.
type Stage func(ctx context.Context, c *Collection, s *Step) error

// Pipeline runs write requests against one collection.
type Pipeline struct {
	coll      *Collection
	store     storage.Store
	users     auth.UserStore
	publisher stream.Publisher
	now       func() time.Time
	newID     func() string

	stages []Stage
}

// NewPipeline creates the write path of c. users may be nil, in which case
// every token is rejected.
func NewPipeline(c *Collection, store storage.Store, users auth.UserStore, publisher stream.Publisher) *Pipeline {
	p := &Pipeline{
		coll:      c,
		store:     store,
		users:     users,
		publisher: publisher,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	p.stages = []Stage{p.validate, p.authenticate, p.authorize, p.dispatch}
	return p
}

// Collection returns the collection the pipeline writes to.
func (p *Pipeline) Collection() *Collection { return p.coll }

// Handle runs req through the stages in order. Known failures come back as
// *errors.RequestError; anything else is logged and reported as an internal error.
func (p *Pipeline) Handle(ctx context.Context, req v1.Request) (*Result, error) {
	step := &Step{Request: req.Normalize()}
	for _, stage := range p.stages {
		if err := stage(ctx, p.coll, step); err != nil {
			return nil, p.boundary(step.Request.Method, err)
		}
	}
	return step.Result, nil
}

func (p *Pipeline) boundary(method string, err error) error {
	if re, ok := apperrors.AsRequestError(err); ok {
		return re
	}
	slog.Error("[Collection] Request failed",
		"collection", p.coll.Name,
		"method", method,
		"error", err)
	return apperrors.InternalError()
}

func (p *Pipeline) validate(ctx context.Context, c *Collection, s *Step) error {
	req := s.Request
	switch req.Method {
	case v1.MethodInsert, v1.MethodReplace:
		if req.Element == nil {
			return apperrors.ValidationError("element is required")
		}
		if req.Method == v1.MethodReplace && req.ElementID == "" {
			return apperrors.ValidationError("elementId is required")
		}
		if _, reserved := req.Element[storage.FieldVersion]; reserved {
			return apperrors.ValidationError(fmt.Sprintf("%s is a reserved field", storage.FieldVersion))
		}
		if c.Validate != nil {
			if err := c.Validate(ctx, v1.StripID(req.Element)); err != nil {
				return apperrors.ValidationError(validationDetails(err))
			}
		}
	case v1.MethodRemove:
		if req.ElementID == "" {
			return apperrors.ValidationError("elementId is required")
		}
	default:
		return nil
	}

	if c.Versioned && req.Method != v1.MethodInsert && req.Version == "" {
		return apperrors.ValidationError("version is required")
	}
	return nil
}

func validationDetails(err error) interface{} {
	var detailer schema.ValidationDetailer
	if errors.As(err, &detailer) {
		return detailer.Details()
	}
	return err.Error()
}

func (p *Pipeline) authenticate(ctx context.Context, _ *Collection, s *Step) error {
	if s.Request.Token == "" {
		return nil
	}
	if p.users == nil {
		return apperrors.AuthenticationError(auth.ErrInvalidToken.Error())
	}

	user, err := auth.Authenticate(ctx, p.users, s.Request.Token)
	if errors.Is(err, auth.ErrInvalidToken) {
		return apperrors.AuthenticationError(auth.ErrInvalidToken.Error())
	}
	if err != nil {
		return err
	}
	s.Request.User = user
	return nil
}

func (p *Pipeline) authorize(ctx context.Context, c *Collection, s *Step) error {
	if c.Authorize == nil {
		return nil
	}
	if err := c.Authorize(ctx, s.Request.Clone()); err != nil {
		return apperrors.AuthorizationError(err.Error())
	}
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, c *Collection, s *Step) error {
	req := s.Request
	switch req.Method {
	case v1.MethodInsert:
		res, err := p.insert(ctx, c, req)
		s.Result = res
		return err
	case v1.MethodReplace:
		return p.replace(ctx, c, req)
	case v1.MethodRemove:
		return p.remove(ctx, c, req)
	}
	return apperrors.MethodError(req.Method)
}

func (p *Pipeline) insert(ctx context.Context, c *Collection, req v1.Request) (*Result, error) {
	id := v1.ElementID(req.Element)
	if id == "" {
		id = req.ElementID
	}
	if id == "" {
		id = p.newID()
	}

	exists, err := p.store.Exists(ctx, c.Store, storage.Query{ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to check existence of %s: %w", id, err)
	}
	if exists {
		return nil, apperrors.ConflictError(fmt.Sprintf("element %s already exists", id))
	}

	data := v1.EventData{ID: id, Element: v1.StripID(req.Element)}
	if err := p.publish(ctx, c, v1.KindInserted, data); err != nil {
		return nil, err
	}
	return &Result{ID: id}, nil
}

func (p *Pipeline) replace(ctx context.Context, c *Collection, req v1.Request) error {
	if err := p.checkCurrent(ctx, c, req); err != nil {
		return err
	}
	data := v1.EventData{ID: req.ElementID, Element: v1.StripID(req.Element)}
	if c.Versioned {
		data.Version = req.Version
	}
	return p.publish(ctx, c, v1.KindReplaced, data)
}

func (p *Pipeline) remove(ctx context.Context, c *Collection, req v1.Request) error {
	if err := p.checkCurrent(ctx, c, req); err != nil {
		return err
	}
	data := v1.EventData{ID: req.ElementID}
	if c.Versioned {
		data.Version = req.Version
	}
	return p.publish(ctx, c, v1.KindRemoved, data)
}

// checkCurrent fails unless the entity exists and, for versioned collections,
// still has the version the caller expects. The read store lags the log, so
// this narrows races without closing them; projections settle the rest.
func (p *Pipeline) checkCurrent(ctx context.Context, c *Collection, req v1.Request) error {
	exists, err := p.store.Exists(ctx, c.Store, storage.Query{ID: req.ElementID})
	if err != nil {
		return fmt.Errorf("failed to check existence of %s: %w", req.ElementID, err)
	}
	if !exists {
		return apperrors.NotFoundError(fmt.Sprintf("element %s not found", req.ElementID))
	}
	if !c.Versioned {
		return nil
	}

	current, err := p.store.Exists(ctx, c.Store, storage.Query{ID: req.ElementID, Version: req.Version})
	if err != nil {
		return fmt.Errorf("failed to check version of %s: %w", req.ElementID, err)
	}
	if !current {
		return apperrors.ConflictError("stale version")
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, c *Collection, kind v1.EventKind, data v1.EventData) error {
	rec := codec.NewRecord(kind, c.Name, data, "", p.now())
	payload, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, c.PartitionKey(data.ID), c.StreamName, payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	slog.Info("[Collection] Published event",
		"collection", c.Name,
		"stream", c.StreamName,
		"event_id", rec.ID,
		"kind", kind.String(),
		"entity_id", data.ID)
	return nil
}

// FindOne reads an element straight from the read store. The stored id comes back
// as "id". version is the content version of versioned collections, empty otherwise.
func (p *Pipeline) FindOne(ctx context.Context, id string) (element map[string]interface{}, version string, err error) {
	doc, err := p.store.FindOne(ctx, p.coll.Store, storage.Query{ID: id})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", apperrors.NotFoundError(fmt.Sprintf("element %s not found", id))
	}
	if err != nil {
		return nil, "", p.boundary("findOne", fmt.Errorf("failed to find %s: %w", id, err))
	}

	element = make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch k {
		case storage.FieldID:
		case storage.FieldVersion:
			if p.coll.Versioned {
				version, _ = v.(string)
			}
		default:
			element[k] = v
		}
	}
	element["id"] = id
	return element, version, nil
}
