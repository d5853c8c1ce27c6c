package recorder

import "errors"

var (
	// ErrDuplicateKey is returned when an item is added as new under a key that is already present.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrKeyNotFound is returned when an update-only operation names a key that is not present.
	ErrKeyNotFound = errors.New("key not found")
	// ErrIndexOutOfRange is returned when a positional operation refers to a nonexistent index.
	ErrIndexOutOfRange = errors.New("index out of range")
)
