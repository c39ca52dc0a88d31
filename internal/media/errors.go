package media

import (
	"errors"
	"fmt"
)

// Request-scoped failures. These never touch the filesystem or the store
// beyond the lookup that produced them.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("media not found")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// StorageError is a filesystem failure (disk full, permission denied, path
// collision). Surfaced, never swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EncodingError is an image or video codec failure.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding: %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
