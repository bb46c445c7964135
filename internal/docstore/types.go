// Package docstore is a document store with live queries.
//
// Documents are schemaless JSON objects grouped in collections and addressed
// by an opaque id the store assigns. A Subscription re-delivers the full
// result of its query every time a write touches the collection.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a mutation targets an id that does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrPermissionDenied is returned when a document fails a mutation precondition.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnavailable wraps driver failures.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("document store closed")
)

// Fields is the body of a document.
type Fields map[string]any

// Document is one stored object.
type Document struct {
	ID     string
	Fields Fields
}

// String returns the field as a string, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool returns the field as a bool, or false when absent or not a bool.
func (d Document) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Filter selects documents whose field equals Value. A zero Filter matches
// every document of the collection.
type Filter struct {
	Field string
	Value any
}

// IsZero reports whether f matches everything.
func (f Filter) IsZero() bool {
	return f.Field == ""
}

// Match reports whether fields satisfy f.
func (f Filter) Match(fields Fields) bool {
	if f.IsZero() {
		return true
	}
	got, ok := fields[f.Field]
	if !ok {
		return false
	}
	return normalize(got) == normalize(f.Value)
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Snapshot is one delivery of a live query: either the complete ordered
// result set or the error that prevented computing it.
type Snapshot struct {
	Docs []Document
	Err  error
}

// normalize maps values that survived a JSON round trip and values coming
// from Go callers onto the same representation.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	default:
		return v
	}
}

func encodeFields(fields Fields) (string, error) {
	if fields == nil {
		fields = Fields{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("json marshal: %w", err)
	}
	return string(b), nil
}

func decodeFields(data string) (Fields, error) {
	fields := Fields{}
	if data == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return fields, nil
}
