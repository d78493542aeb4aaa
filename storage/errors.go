package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when inserting a record whose video ID
	// is already present in the ledger.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrLockTimeout is returned when a file lock cannot be acquired
	// within the configured timeout.
	ErrLockTimeout = errors.New("lock acquisition timeout")
)

// StorageError wraps storage failures with operation context.
type StorageError struct {
	Op     string // Operation: "open", "record", "get", "lock", etc.
	Entity string // Entity type: "ledger", "file", etc.
	ID     string // Entity identifier
	Err    error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage %s %s %q: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
