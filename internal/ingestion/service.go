// Package ingestion exposes collection pipelines over HTTP: REST element routes,
// the API-gateway envelope, JSON-RPC and push delivery of logged records.
package ingestion

import (
	"github.com/aevon-lab/eventbridge/internal/collection"
	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/gin-gonic/gin"
)

type Service struct {
	pipelines        map[string]*collection.Pipeline
	push             stream.BatchHandler
	maxBodySizeBytes int
}

// NewService serves pipelines by collection name. push receives records delivered to
// the records endpoint; when nil the endpoint is not mounted.
func NewService(pipelines []*collection.Pipeline, push stream.BatchHandler, maxBodySizeMB int) *Service {
	if len(pipelines) == 0 {
		panic("ingestion: at least one pipeline is required")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	byName := make(map[string]*collection.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byName[p.Collection().Name] = p
	}
	return &Service{
		pipelines:        byName,
		push:             push,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	elements := r.Group("/v1/collections/:collection/elements")
	elements.POST("", s.InsertHandler)
	elements.PUT("/:id", s.ReplaceHandler)
	elements.DELETE("/:id", s.RemoveHandler)
	elements.GET("/:id", s.FindOneHandler)

	r.POST("/v1/collections/:collection", s.GatewayHandler)
	r.POST("/v1/rpc", s.RPCHandler)

	if s.push != nil {
		r.POST("/v1/collections/:collection/records", s.RecordsHandler)
	}
}
