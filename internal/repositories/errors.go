package repositories

import (
	"errors"
	"fmt"
)

// Error is the concrete RepositoryError returned by the kv-backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing record.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the error represents a backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// NotFound builds a not-found repository error.
func NotFound(op string, err error) *Error {
	return &Error{op: op, err: err, notFound: true}
}

// Conflict builds a conflict repository error.
func Conflict(op string, err error) *Error {
	return &Error{op: op, err: err, conflict: true}
}

// Unavailable builds an unavailable repository error.
func Unavailable(op string, err error) *Error {
	return &Error{op: op, err: err, unavailable: true}
}

// IsNotFound reports whether err carries a not-found repository error
// anywhere in its chain.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict repository error
// anywhere in its chain.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries an unavailable repository error
// anywhere in its chain.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
