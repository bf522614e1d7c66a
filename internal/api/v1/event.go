package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventKind is the closed set of mutations a collection can record.
type EventKind int

const (
	KindInserted EventKind = iota + 1
	KindReplaced
	KindRemoved
)

func (k EventKind) verb() string {
	switch k {
	case KindInserted:
		return "inserted"
	case KindReplaced:
		return "replaced"
	case KindRemoved:
		return "removed"
	default:
		return ""
	}
}

func (k EventKind) String() string {
	if v := k.verb(); v != "" {
		return v
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// EventTag renders the wire type tag, e.g. "element inserted in collection users".
func EventTag(kind EventKind, collection string) string {
	return fmt.Sprintf("element %s in collection %s", kind.verb(), collection)
}

// ParseEventTag converts a wire type tag back into its kind and collection.
func ParseEventTag(tag string) (EventKind, string, bool) {
	for _, kind := range []EventKind{KindInserted, KindReplaced, KindRemoved} {
		prefix := "element " + kind.verb() + " in collection "
		if name, ok := strings.CutPrefix(tag, prefix); ok && name != "" {
			return kind, name, true
		}
	}
	return 0, "", false
}

// EventData is the payload of an EventRecord.
type EventData struct {
	// ID is the entity identifier the event applies to.
	ID string `json:"id"`

	// Element is the full element body for inserts and replaces.
	Element map[string]interface{} `json:"element,omitempty"`

	// Version is the expected prior content version of the entity.
	// Only present on replace/remove events of versioned collections.
	Version string `json:"version,omitempty"`
}

// EventRecord is the append-only unit of truth published to the log.
// Once published it is never modified.
type EventRecord struct {
	// ID is the event identifier, independent from the entity id.
	ID string

	Kind       EventKind
	Collection string

	// Timestamp is the event creation time, serialized as RFC 3339 (UTC, nanoseconds).
	Timestamp time.Time

	Data EventData
}

// Type returns the wire type tag of the record.
func (r EventRecord) Type() string {
	return EventTag(r.Kind, r.Collection)
}

type wireRecord struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp"`
	Data       EventData       `json:"data"`
}

// MarshalJSON writes the record in its wire format.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	if r.Kind.verb() == "" {
		return nil, fmt.Errorf("unknown event kind %d", int(r.Kind))
	}
	ts, err := json.Marshal(r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID         string          `json:"id,omitempty"`
		Type       string          `json:"type"`
		Collection string          `json:"collection,omitempty"`
		Timestamp  json.RawMessage `json:"timestamp"`
		Data       wireData        `json:"data"`
	}{
		ID:         r.ID,
		Type:       r.Type(),
		Collection: r.Collection,
		Timestamp:  ts,
		Data:       r.wireData(),
	})
}

// wireData is EventData as written. Inserts and replaces always carry an element,
// even an empty one.
type wireData struct {
	ID      string      `json:"id"`
	Element interface{} `json:"element,omitempty"`
	Version string      `json:"version,omitempty"`
}

func (r EventRecord) wireData() wireData {
	d := wireData{ID: r.Data.ID, Version: r.Data.Version}
	switch r.Kind {
	case KindInserted, KindReplaced:
		if r.Data.Element == nil {
			d.Element = map[string]interface{}{}
		} else {
			d.Element = r.Data.Element
		}
	default:
		if r.Data.Element != nil {
			d.Element = r.Data.Element
		}
	}
	return d
}

// UnmarshalJSON reads the wire format. Timestamps are accepted as RFC 3339 strings or,
// for records written by older producers, as epoch milliseconds.
func (r *EventRecord) UnmarshalJSON(b []byte) error {
	var w wireRecord
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return err
	}

	kind, collection, ok := ParseEventTag(w.Type)
	if !ok {
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	if w.Collection != "" && w.Collection != collection {
		return fmt.Errorf("event type %q does not match collection %q", w.Type, w.Collection)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}

	*r = EventRecord{
		ID:         w.ID,
		Kind:       kind,
		Collection: collection,
		Timestamp:  ts,
		Data:       w.Data,
	}
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Validate ensures the record carries what a projection needs.
func (r *EventRecord) Validate() error {
	if r.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	switch r.Kind {
	case KindInserted:
		if r.Data.Element == nil {
			return fmt.Errorf("data.element is required for %s events", r.Kind)
		}
	case KindReplaced:
		if r.Data.ID == "" {
			return fmt.Errorf("data.id is required for %s events", r.Kind)
		}
		if r.Data.Element == nil {
			return fmt.Errorf("data.element is required for %s events", r.Kind)
		}
	case KindRemoved:
		if r.Data.ID == "" {
			return fmt.Errorf("data.id is required for %s events", r.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %d", int(r.Kind))
	}
	return nil
}
