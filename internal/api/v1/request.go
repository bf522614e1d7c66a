package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Canonical write methods.
const (
	MethodInsert  = "insert"
	MethodReplace = "replace"
	MethodRemove  = "remove"
)

// User is the principal resolved from a login token.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Request is one write against a collection, as handed over by a transport adapter.
//
// Method is "insert", "replace" or "remove". The legacy gateway form uses the HTTP verbs
// POST, PUT and DELETE together with Body; Normalize maps it onto the canonical fields.
type Request struct {
	Method    string                 `json:"method"`
	Element   map[string]interface{} `json:"element,omitempty"`
	ElementID string                 `json:"elementId,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Token     string                 `json:"token,omitempty"`
	Body      interface{}            `json:"body,omitempty"`

	// User is attached by authentication. Never read from the wire.
	User *User `json:"-"`
}

// Normalize maps the legacy HTTP-verb form onto the canonical methods.
// Unknown methods are left untouched so dispatch can reject them.
func (r Request) Normalize() Request {
	switch r.Method {
	case http.MethodPost:
		r.Method = MethodInsert
		if r.Element == nil {
			if body, ok := r.Body.(map[string]interface{}); ok {
				r.Element = body
			}
		}
	case http.MethodPut:
		r.Method = MethodReplace
		if body, ok := r.Body.(map[string]interface{}); ok {
			if r.Element == nil {
				r.Element = body
			}
			if r.ElementID == "" {
				r.ElementID = ElementID(body)
			}
		}
	case http.MethodDelete:
		r.Method = MethodRemove
		if r.ElementID == "" {
			switch body := r.Body.(type) {
			case string:
				r.ElementID = body
			case map[string]interface{}:
				r.ElementID = ElementID(body)
			}
		}
	}
	return r
}

// Clone returns a deep copy of the request. Authorization predicates receive a clone so
// they cannot mutate the pipeline's working copy.
func (r Request) Clone() Request {
	c := r
	if r.Element != nil {
		c.Element = CloneElement(r.Element)
	}
	c.Body = cloneValue(r.Body)
	if r.User != nil {
		u := *r.User
		u.Roles = append([]string(nil), r.User.Roles...)
		c.User = &u
	}
	return c
}

// ElementID returns the caller-supplied identifier of an element ("id", then "_id").
func ElementID(element map[string]interface{}) string {
	for _, key := range []string{"id", "_id"} {
		switch v := element[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// StripID returns a copy of the element without its "id" and "_id" keys.
func StripID(element map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(element))
	for k, v := range element {
		if k == "id" || k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}

// CloneElement deep-copies an element.
func CloneElement(element map[string]interface{}) map[string]interface{} {
	if element == nil {
		return nil
	}
	return cloneValue(element).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
