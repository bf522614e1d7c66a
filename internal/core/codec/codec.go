package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	v1 "github.com/aevon-lab/eventbridge/internal/api/v1"
	"github.com/google/uuid"
)

// NewRecord builds an EventRecord. An empty id gets a fresh UUIDv4; a zero now uses the current time.
func NewRecord(kind v1.EventKind, collection string, data v1.EventData, id string, now time.Time) v1.EventRecord {
	if id == "" {
		id = uuid.New().String()
	}
	if now.IsZero() {
		now = time.Now()
	}
	return v1.EventRecord{
		ID:         id,
		Kind:       kind,
		Collection: collection,
		Timestamp:  now.UTC(),
		Data:       data,
	}
}

// Encode validates and serializes a record to its wire format.
func Encode(rec v1.EventRecord) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event record: %w", err)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event record: %w", err)
	}
	return b, nil
}

// Decode parses and validates a wire payload.
func Decode(payload []byte) (v1.EventRecord, error) {
	var rec v1.EventRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return v1.EventRecord{}, fmt.Errorf("failed to decode event record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return v1.EventRecord{}, fmt.Errorf("invalid event record: %w", err)
	}
	return rec, nil
}

// DecodeBase64 decodes a push-delivered record: base64, then UTF-8 JSON.
func DecodeBase64(data string) (v1.EventRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return v1.EventRecord{}, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return Decode(raw)
}

// ContentVersion returns the content hash of an element: lowercase hex SHA-256 over its
// canonical JSON (sorted keys), ignoring the id and _id keys.
func ContentVersion(element map[string]interface{}) (string, error) {
	view := make(map[string]interface{}, len(element))
	for k, v := range element {
		switch k {
		case "id", "_id":
			continue
		}
		view[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(view); err != nil {
		return "", fmt.Errorf("failed to canonicalize element: %w", err)
	}

	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}
