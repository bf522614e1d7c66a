// Package api exposes the element schemas of each collection over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/aevon-lab/eventbridge/internal/core/errors"
	"github.com/aevon-lab/eventbridge/internal/schema"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// Handler serves read-only schema discovery and dry-run validation.
type Handler struct {
	registry  *schema.Registry
	validator *schema.Validator
}

func NewHandler(reg *schema.Registry, val *schema.Validator) *Handler {
	return &Handler{registry: reg, validator: val}
}

// RegisterRoutes mounts the schema routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	schemas := r.Group("/v1/schemas")
	schemas.GET("", h.HandleList)
	schemas.GET("/:collection/:version", h.HandleGet)
	schemas.POST("/:collection/:version/validate", h.HandleValidate)
}

// SchemaResponse describes one schema version. YAML definitions are returned
// parsed; protobuf ones as raw text.
type SchemaResponse struct {
	Collection  string      `json:"collection"`
	Version     int         `json:"version"`
	Format      string      `json:"format"`
	State       string      `json:"state"`
	StrictMode  bool        `json:"strict_mode"`
	Fingerprint string      `json:"fingerprint"`
	CreatedAt   string      `json:"created_at,omitempty"`
	Definition  interface{} `json:"definition"`
}

func abort(c *gin.Context, e *apperrors.RequestError) {
	c.AbortWithStatusJSON(e.Code, e)
}

// lookup resolves the :collection/:version params; "latest" picks the newest active version.
func (h *Handler) lookup(c *gin.Context) (*schema.Schema, bool) {
	version := 0
	if v := c.Param("version"); v != "latest" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abort(c, apperrors.ValidationError("version must be a positive integer or \"latest\""))
			return nil, false
		}
		version = n
	}

	s, err := h.registry.Get(c.Request.Context(), c.Param("collection"), version)
	if errors.Is(err, schema.ErrNotFound) {
		abort(c, apperrors.NotFoundError(err.Error()))
		return nil, false
	}
	if err != nil {
		slog.Error("[Schema] Lookup failed", "collection", c.Param("collection"), "error", err)
		abort(c, apperrors.InternalError())
		return nil, false
	}
	return s, true
}

// HandleGet handles GET /v1/schemas/:collection/:version.
func (h *Handler) HandleGet(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	resp, err := toResponse(s)
	if err != nil {
		slog.Error("[Schema] Definition conversion failed", "collection", s.Collection, "version", s.Version, "error", err)
		abort(c, apperrors.InternalError())
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleList handles GET /v1/schemas, optionally filtered by ?collection=.
func (h *Handler) HandleList(c *gin.Context) {
	schemas, err := h.registry.List(c.Request.Context(), c.Query("collection"))
	if err != nil {
		slog.Error("[Schema] List failed", "error", err)
		abort(c, apperrors.InternalError())
		return
	}

	out := make([]*SchemaResponse, 0, len(schemas))
	for _, s := range schemas {
		resp, err := toResponse(s)
		if err != nil {
			slog.Error("[Schema] Definition conversion failed", "collection", s.Collection, "version", s.Version, "error", err)
			abort(c, apperrors.InternalError())
			return
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// HandleValidate handles POST /v1/schemas/:collection/:version/validate. Nothing is written.
func (h *Handler) HandleValidate(c *gin.Context) {
	var element map[string]interface{}
	if err := c.ShouldBindJSON(&element); err != nil {
		abort(c, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	s, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := h.validator.Validate(c.Request.Context(), s, element); err != nil {
		var detailer schema.ValidationDetailer
		if errors.As(err, &detailer) {
			abort(c, apperrors.ValidationError(detailer.Details()))
			return
		}
		slog.Error("[Schema] Validation failed to run", "collection", s.Collection, "version", s.Version, "error", err)
		abort(c, apperrors.InternalError())
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "collection": s.Collection, "version": s.Version})
}

func toResponse(s *schema.Schema) (*SchemaResponse, error) {
	resp := &SchemaResponse{
		Collection:  s.Collection,
		Version:     s.Version,
		Format:      string(s.Format),
		State:       string(s.State),
		StrictMode:  s.StrictMode,
		Fingerprint: s.Fingerprint,
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.UTC().Format(time.RFC3339)
	}

	if s.Format == schema.FormatYaml {
		var parsed map[string]interface{}
		if err := yaml.Unmarshal(s.Definition, &parsed); err != nil {
			return nil, err
		}
		resp.Definition = parsed
		return resp, nil
	}
	resp.Definition = map[string]interface{}{"raw": string(s.Definition)}
	return resp, nil
}
