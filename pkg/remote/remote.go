package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Well-known row fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Row is one record of a collection.
type Row map[string]any

// ID returns the row key.
func (r Row) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// String returns the string value of field, or "".
func (r Row) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer value of field, accepting the numeric types that
// JSON and SQL decoding produce.
func (r Row) Int(field string) int {
	switch v := r[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

// Float returns the float value of field.
func (r Row) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns the boolean value of field.
func (r Row) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// Time parses field as an RFC 3339 timestamp.
func (r Row) Time(field string) time.Time {
	switch v := r[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter selects rows of a collection.
type Filter struct {
	// Eq requires field equality for every entry.
	Eq map[string]any `json:"eq,omitempty"`

	// Search is a case-insensitive substring matched against SearchFields.
	Search       string   `json:"search,omitempty"`
	SearchFields []string `json:"search_fields,omitempty"`

	// OrderBy names the sort field; Desc reverses the order.
	OrderBy string `json:"order_by,omitempty"`
	Desc    bool   `json:"desc,omitempty"`

	// Limit caps the result count; 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// Op is a write operation kind.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpUpsert Op = "upsert"
)

// Mutation describes one write.
type Mutation struct {
	Op     Op     `json:"op"`
	Key    string `json:"key,omitempty"`
	Values Row    `json:"values"`
}

// Insert returns an insert mutation. The key is taken from values["id"] or
// generated by the backend.
func Insert(values Row) Mutation {
	return Mutation{Op: OpInsert, Key: values.ID(), Values: values}
}

// Update returns a mutation merging values into the row with key.
func Update(key string, values Row) Mutation {
	return Mutation{Op: OpUpdate, Key: key, Values: values}
}

// Upsert returns a mutation creating or replacing the row with key.
func Upsert(key string, values Row) Mutation {
	return Mutation{Op: OpUpsert, Key: key, Values: values}
}

// ChangeKind classifies a change feed event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one change feed event.
type Change struct {
	Collection string     `json:"collection"`
	Kind       ChangeKind `json:"kind"`
	Key        string     `json:"key"`
	Row        Row        `json:"row,omitempty"`
}

// Unsubscribe stops a change feed subscription. It is safe to call more
// than once.
type Unsubscribe func()

// Remote is the data-access contract.
type Remote interface {
	Read(ctx context.Context, collection string, f Filter) ([]Row, error)
	Write(ctx context.Context, collection string, m Mutation) (Row, error)
	Remove(ctx context.Context, collection, key string) error
	Subscribe(ctx context.Context, collection string, f Filter, onChange func(Change)) (Unsubscribe, error)
}

// Error codes reported by backends.
const (
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeInvalid     = "invalid"
	CodeUnavailable = "unavailable"
)

// Error is a backend failure with a human-readable message and an optional
// machine code.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s (%s)", e.Message, e.Code)
	}
	return "remote: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with the given code.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }
