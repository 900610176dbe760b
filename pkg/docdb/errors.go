package docdb

import (
	"errors"
	"strings"
)

var (
	// ErrClosed indicates an operation was attempted on a closed DB.
	ErrClosed = errors.New("docdb closed")

	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an insert for a primary key that already exists.
	ErrConflict = errors.New("document already exists")

	// ErrInvalidSchema indicates a schema that cannot be registered.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrSchemaConflict indicates the persisted schema for a collection
	// differs from the one being registered.
	ErrSchemaConflict = errors.New("schema conflicts with persisted schema")

	// ErrValidation indicates a document that does not match its schema.
	ErrValidation = errors.New("document does not match schema")
)

// Error is the error type returned by collection operations.
//
// The underlying error message appears first, followed by context:
//
//	document already exists (collection=todos doc_id=abc123)
//
// Use [errors.As] to extract the fields and [errors.Is] for sentinels:
//
//	if errors.Is(err, docdb.ErrNotFound) { ... }
type Error struct {
	// Collection is the collection name, when known.
	Collection string

	// ID is the primary key of the document involved, when known.
	ID string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (collection=X doc_id=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()

	if suffix == "" {
		return cause
	}

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Collection != "" {
		parts = append(parts, "collection="+e.Collection)
	}

	if e.ID != "" {
		parts = append(parts, "doc_id="+e.ID)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// withContext attaches collection/document context at API boundaries.
// If err is already *Error, missing fields are filled in-place.
func withContext(err error, collection string, id string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Collection == "" && collection != "" {
			existing.Collection = collection
		}

		if existing.ID == "" && id != "" {
			existing.ID = id
		}

		return existing
	}

	return &Error{Collection: collection, ID: id, Err: err}
}
