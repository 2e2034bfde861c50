package vecstore

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrEmptyEmbedding    = errors.New("vecstore: embedding must contain at least one value")
	ErrDimensionMismatch = errors.New("vecstore: embedding dimension mismatch")
	ErrNotInitialized    = errors.New("vecstore: store has no embeddings yet")
	ErrBadVersion        = errors.New("vecstore: unsupported store version")
	ErrCorruptStore      = errors.New("vecstore: store data corrupted")
)

// Error wraps errors with operation context.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vecstore.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
