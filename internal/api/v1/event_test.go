package v1

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventTag_RoundTrip(t *testing.T) {
	for _, kind := range []EventKind{KindInserted, KindReplaced, KindRemoved} {
		tag := EventTag(kind, "users")
		gotKind, gotCollection, ok := ParseEventTag(tag)
		require.True(t, ok, tag)
		require.Equal(t, kind, gotKind)
		require.Equal(t, "users", gotCollection)
	}

	require.Equal(t, "element inserted in collection users", EventTag(KindInserted, "users"))

	_, _, ok := ParseEventTag("/users/insert")
	require.False(t, ok)
	_, _, ok = ParseEventTag("element inserted in collection ")
	require.False(t, ok)
}

func TestEventRecord_MarshalWireFormat(t *testing.T) {
	rec := EventRecord{
		ID:         "evt-1",
		Kind:       KindReplaced,
		Collection: "users",
		Timestamp:  time.Date(2026, 2, 8, 12, 0, 0, 500, time.UTC),
		Data: EventData{
			ID:      "u-1",
			Element: map[string]interface{}{"name": "alice"},
			Version: "abc",
		},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &wire))
	require.Equal(t, "evt-1", wire["id"])
	require.Equal(t, "element replaced in collection users", wire["type"])
	require.Equal(t, "users", wire["collection"])
	require.Equal(t, "2026-02-08T12:00:00.0000005Z", wire["timestamp"])
	require.Equal(t, map[string]interface{}{
		"id":      "u-1",
		"element": map[string]interface{}{"name": "alice"},
		"version": "abc",
	}, wire["data"])
}

func TestEventRecord_EmptyElementSurvivesWire(t *testing.T) {
	for _, kind := range []EventKind{KindInserted, KindReplaced} {
		t.Run(kind.String(), func(t *testing.T) {
			rec := EventRecord{
				Kind:       kind,
				Collection: "tasks",
				Data:       EventData{ID: "t-1", Element: map[string]interface{}{}},
			}

			b, err := json.Marshal(rec)
			require.NoError(t, err)
			require.Contains(t, string(b), `"element":{}`)

			var got EventRecord
			require.NoError(t, json.Unmarshal(b, &got))
			require.NoError(t, got.Validate())
			require.Empty(t, got.Data.Element)
		})
	}

	b, err := json.Marshal(EventRecord{Kind: KindRemoved, Collection: "tasks", Data: EventData{ID: "t-1"}})
	require.NoError(t, err)
	require.NotContains(t, string(b), `"element"`)
}

func TestEventRecord_UnmarshalLegacyEpochMillis(t *testing.T) {
	payload := `{"id":"e1","type":"element removed in collection tasks","timestamp":1700000000123,"data":{"id":"t-1"}}`

	var rec EventRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	require.Equal(t, KindRemoved, rec.Kind)
	require.Equal(t, "tasks", rec.Collection)
	require.Equal(t, time.UnixMilli(1700000000123).UTC(), rec.Timestamp)
	require.Equal(t, "t-1", rec.Data.ID)
	require.NoError(t, rec.Validate())
}

func TestEventRecord_UnmarshalKeepsNumbersExact(t *testing.T) {
	payload := `{"type":"element inserted in collection c","timestamp":"2026-01-01T00:00:00Z","data":{"id":"x","element":{"big":9007199254740993}}}`

	var rec EventRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))
	require.Equal(t, json.Number("9007199254740993"), rec.Data.Element["big"])
}

func TestEventRecord_UnmarshalRejectsMismatchedCollection(t *testing.T) {
	payload := `{"type":"element inserted in collection a","collection":"b","timestamp":"2026-01-01T00:00:00Z","data":{"id":"x","element":{}}}`

	var rec EventRecord
	require.ErrorContains(t, json.Unmarshal([]byte(payload), &rec), "does not match")
}

func TestEventRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     EventRecord
		wantErr string
	}{
		{"insert without id is fine", EventRecord{Kind: KindInserted, Collection: "c", Data: EventData{Element: map[string]interface{}{}}}, ""},
		{"insert without element", EventRecord{Kind: KindInserted, Collection: "c"}, "data.element is required"},
		{"replace without id", EventRecord{Kind: KindReplaced, Collection: "c", Data: EventData{Element: map[string]interface{}{}}}, "data.id is required"},
		{"remove without id", EventRecord{Kind: KindRemoved, Collection: "c"}, "data.id is required"},
		{"missing collection", EventRecord{Kind: KindRemoved, Data: EventData{ID: "x"}}, "collection is required"},
		{"unknown kind", EventRecord{Kind: 9, Collection: "c"}, "unknown event kind"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRequest_NormalizeLegacyVerbs(t *testing.T) {
	post := Request{Method: http.MethodPost, Body: map[string]interface{}{"name": "a"}}.Normalize()
	require.Equal(t, MethodInsert, post.Method)
	require.Equal(t, map[string]interface{}{"name": "a"}, post.Element)

	put := Request{Method: http.MethodPut, Body: map[string]interface{}{"_id": "x", "name": "b"}}.Normalize()
	require.Equal(t, MethodReplace, put.Method)
	require.Equal(t, "x", put.ElementID)

	del := Request{Method: http.MethodDelete, Body: "y"}.Normalize()
	require.Equal(t, MethodRemove, del.Method)
	require.Equal(t, "y", del.ElementID)

	head := Request{Method: http.MethodHead}.Normalize()
	require.Equal(t, http.MethodHead, head.Method)
}

func TestRequest_CloneIsDeep(t *testing.T) {
	orig := Request{
		Method:  MethodInsert,
		Element: map[string]interface{}{"tags": []interface{}{"a"}, "nested": map[string]interface{}{"k": "v"}},
		User:    &User{ID: "u", Roles: []string{"admin"}},
	}

	c := orig.Clone()
	c.Element["tags"].([]interface{})[0] = "changed"
	c.Element["nested"].(map[string]interface{})["k"] = "changed"
	c.User.Roles[0] = "changed"

	require.Equal(t, "a", orig.Element["tags"].([]interface{})[0])
	require.Equal(t, "v", orig.Element["nested"].(map[string]interface{})["k"])
	require.Equal(t, "admin", orig.User.Roles[0])
}

func TestElementIDAndStrip(t *testing.T) {
	el := map[string]interface{}{"id": "a", "_id": "b", "name": "n"}
	require.Equal(t, "a", ElementID(el))
	require.Equal(t, "b", ElementID(map[string]interface{}{"_id": "b"}))
	require.Equal(t, "42", ElementID(map[string]interface{}{"id": json.Number("42")}))
	require.Equal(t, "", ElementID(map[string]interface{}{}))

	require.Equal(t, map[string]interface{}{"name": "n"}, StripID(el))
	require.Len(t, el, 3)
}
