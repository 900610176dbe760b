package remote

import "errors"

// ErrUnauthorized indicates the service rejected the API key.
var ErrUnauthorized = errors.New("unauthorized")

// Error is returned by every remote operation. Err is the transport,
// status or GraphQL error.
type Error struct {
	// Op is the GraphQL operation name, e.g. "createTodo".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "remote " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
