package domain

import "errors"

var (
	// ErrNotFound is returned when a section or snapshot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentVersionConflict is returned when another writer claimed the same version.
	ErrConcurrentVersionConflict = errors.New("concurrent version conflict")
	// ErrInvalidFieldShape is returned when a field list is malformed.
	ErrInvalidFieldShape = errors.New("invalid field shape")
	// ErrInvalidQuery is returned for malformed audit filters or pagination.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrDependencyUnavailable wraps persistence or directory failures.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
