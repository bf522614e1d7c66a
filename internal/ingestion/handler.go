package ingestion

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/aevon-lab/eventbridge/internal/collection"
	"github.com/aevon-lab/eventbridge/internal/core/codec"
	apperrors "github.com/aevon-lab/eventbridge/internal/core/errors"
	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/gin-gonic/gin"
)

const (
	msgInvalidJSON    = "Invalid JSON body"
	msgBodyTooLarge   = "Request body exceeds maximum allowed size"
	msgReadBodyFailed = "Failed to read request body"
	msgUnknownColl    = "collection %s not found"
	msgInvalidParams  = "Invalid params"
)

var errBodyTooLarge = errors.New("body too large")

// InsertHandler handles POST /v1/collections/:collection/elements.
func (s *Service) InsertHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	var element map[string]interface{}
	if !s.bind(c, &element) {
		return
	}

	res, err := p.Handle(c.Request.Context(), v1.Request{
		Method:  v1.MethodInsert,
		Element: element,
		Token:   bearerToken(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ReplaceHandler handles PUT /v1/collections/:collection/elements/:id.
// The expected version comes from If-Match.
func (s *Service) ReplaceHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	var element map[string]interface{}
	if !s.bind(c, &element) {
		return
	}

	_, err := p.Handle(c.Request.Context(), v1.Request{
		Method:    v1.MethodReplace,
		ElementID: c.Param("id"),
		Element:   element,
		Version:   ifMatch(c),
		Token:     bearerToken(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveHandler handles DELETE /v1/collections/:collection/elements/:id.
func (s *Service) RemoveHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}

	_, err := p.Handle(c.Request.Context(), v1.Request{
		Method:    v1.MethodRemove,
		ElementID: c.Param("id"),
		Version:   ifMatch(c),
		Token:     bearerToken(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FindOneHandler handles GET /v1/collections/:collection/elements/:id.
func (s *Service) FindOneHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	element, version, err := p.FindOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if version != "" {
		c.Header("ETag", `"`+version+`"`)
	}
	c.JSON(http.StatusOK, element)
}

// GatewayHandler handles POST /v1/collections/:collection, the API-gateway envelope
// {method, element|body, elementId, version, token}. The legacy HTTP verbs are accepted
// as methods.
func (s *Service) GatewayHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	var req v1.Request
	if !s.bind(c, &req) {
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(c)
	}

	res, err := p.Handle(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rpcRequest struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     interface{}             `json:"id"`
	Result interface{}             `json:"result"`
	Error  *apperrors.RequestError `json:"error,omitempty"`
}

// RPCHandler handles POST /v1/rpc. The method is "/{collection}/{insert|replace|remove}";
// params are either a request object or positional arguments. Failures are reported in
// the response body with status 200.
func (s *Service) RPCHandler(c *gin.Context) {
	var req rpcRequest
	if !s.bind(c, &req) {
		return
	}

	resp := rpcResponse{ID: req.ID}
	res, err := s.rpc(c, req)
	if err != nil {
		re, ok := apperrors.AsRequestError(err)
		if !ok {
			re = apperrors.InternalError()
		}
		resp.Error = re
	} else if res != nil {
		resp.Result = res
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Service) rpc(c *gin.Context, req rpcRequest) (*collection.Result, error) {
	name, method, ok := splitRPCMethod(req.Method)
	if !ok {
		return nil, apperrors.MethodError(req.Method)
	}
	p, found := s.pipelines[name]
	if !found {
		return nil, apperrors.NotFoundError(fmt.Sprintf(msgUnknownColl, name))
	}

	params, err := rpcParams(req.Params, method, p.Collection().Versioned)
	if err != nil {
		return nil, err
	}
	params.Method = method
	if params.Token == "" {
		params.Token = bearerToken(c)
	}
	return p.Handle(c.Request.Context(), params)
}

// rpcParams decodes RPC params. The positional forms are insert(element),
// replace(id, element) and remove(id); versioned collections take the version
// after the id.
func rpcParams(raw json.RawMessage, method string, versioned bool) (v1.Request, error) {
	var req v1.Request
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil
	}
	if raw[0] != '[' {
		if err := decodeJSON(raw, &req); err != nil {
			return req, apperrors.ValidationError(msgInvalidParams)
		}
		return req, nil
	}

	var args []json.RawMessage
	if err := decodeJSON(raw, &args); err != nil {
		return req, apperrors.ValidationError(msgInvalidParams)
	}

	var targets []interface{}
	switch method {
	case v1.MethodInsert:
		targets = []interface{}{&req.Element}
	case v1.MethodReplace:
		targets = []interface{}{&req.ElementID, &req.Element}
		if versioned {
			targets = []interface{}{&req.ElementID, &req.Version, &req.Element}
		}
	case v1.MethodRemove:
		targets = []interface{}{&req.ElementID}
		if versioned {
			targets = []interface{}{&req.ElementID, &req.Version}
		}
	default:
		return req, nil
	}
	if len(args) > len(targets) {
		return req, apperrors.ValidationError(fmt.Sprintf("%s takes at most %d params", method, len(targets)))
	}
	for i, arg := range args {
		if err := decodeJSON(arg, targets[i]); err != nil {
			return req, apperrors.ValidationError(msgInvalidParams)
		}
	}
	return req, nil
}

func decodeJSON(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// splitRPCMethod parses "/{collection}/{method}".
func splitRPCMethod(m string) (coll, method string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(m, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type pushRecord struct {
	PartitionKey   string `json:"partitionKey"`
	SequenceNumber string `json:"sequenceNumber"`
	Data           string `json:"data"`
}

type pushBatch struct {
	Records []pushRecord `json:"records"`
}

// RecordsHandler handles POST /v1/collections/:collection/records, push delivery of
// base64 encoded log records. Records that are not base64 or that belong to another
// collection are skipped. A 500 tells the sender to redeliver from the first
// unprocessed record.
func (s *Service) RecordsHandler(c *gin.Context) {
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	var batch pushBatch
	if !s.bind(c, &batch) {
		return
	}
	name := p.Collection().Name

	// origin maps each forwarded record back to its position in the batch.
	records := make([]stream.Record, 0, len(batch.Records))
	origin := make([]int, 0, len(batch.Records))
	for i, r := range batch.Records {
		data, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			slog.Warn("[Ingestion] Skipping record with invalid base64 payload",
				"collection", name,
				"sequence_number", r.SequenceNumber,
				"error", err)
			continue
		}
		if rec, err := codec.Decode(data); err == nil && rec.Collection != name {
			slog.Warn("[Ingestion] Skipping record of another collection",
				"collection", name,
				"record_collection", rec.Collection,
				"sequence_number", r.SequenceNumber)
			continue
		}
		records = append(records, stream.Record{
			Stream:         p.Collection().StreamName,
			PartitionKey:   r.PartitionKey,
			SequenceNumber: r.SequenceNumber,
			Data:           data,
		})
		origin = append(origin, i)
	}

	n, err := s.push.HandleBatch(c.Request.Context(), records)
	if err != nil {
		processed := len(batch.Records)
		if n < len(origin) {
			processed = origin[n]
		}
		slog.Error("[Ingestion] Push batch failed",
			"collection", name,
			"processed", processed,
			"total", len(batch.Records),
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":      http.StatusInternalServerError,
			"message":   apperrors.InternalErrorMessage,
			"processed": processed,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(batch.Records)})
}

func (s *Service) pipeline(c *gin.Context) (*collection.Pipeline, bool) {
	name := c.Param("collection")
	p, ok := s.pipelines[name]
	if !ok {
		writeError(c, apperrors.NotFoundError(fmt.Sprintf(msgUnknownColl, name)))
		return nil, false
	}
	return p, true
}

// bind decodes the JSON body into v, keeping numbers as json.Number so large
// integers reach validation and the log unchanged. It writes the error response
// and returns false on failure.
func (s *Service) bind(c *gin.Context, v interface{}) bool {
	body, err := s.readBody(c)
	if errors.Is(err, errBodyTooLarge) {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(body), "max", s.maxBodySizeBytes)
		c.JSON(http.StatusRequestEntityTooLarge, apperrors.RequestError{
			Code:    http.StatusRequestEntityTooLarge,
			Message: msgBodyTooLarge,
			Details: map[string]interface{}{"max_size_mb": s.maxBodySizeBytes / (1024 * 1024)},
		})
		return false
	}
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		writeError(c, apperrors.InternalError())
		return false
	}

	if err := decodeJSON(body, v); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(body))
		writeError(c, apperrors.ValidationError(msgInvalidJSON))
		return false
	}
	return true
}

func (s *Service) readBody(c *gin.Context) ([]byte, error) {
	maxBytes := int64(s.maxBodySizeBytes)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", msgReadBodyFailed, err)
	}
	if int64(len(body)) > maxBytes {
		return body, errBodyTooLarge
	}
	return body, nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func ifMatch(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader("If-Match"))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

// writeError serializes a RequestError as the JSON HTTP response. Anything else
// is reported as an opaque internal error.
func writeError(c *gin.Context, err error) {
	re, ok := apperrors.AsRequestError(err)
	if !ok {
		slog.Error("[Ingestion] Unexpected error", "error", err)
		re = apperrors.InternalError()
	}
	c.JSON(re.Code, re)
}
