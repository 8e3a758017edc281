package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStore is wrapped by every failed batch write.
	ErrStore = errors.New("vector store write failed")

	// ErrVectorConfigRequired is returned when a collection would be created
	// without an explicit dimension or distance.
	ErrVectorConfigRequired = errors.New("vector dimension and distance are required")

	ErrCollectionRequired = errors.New("collection name required")
	ErrUnknownBackend     = errors.New("unknown vector store backend")
	ErrUnsupported        = errors.New("unsupported by backend")
)

// FlushError reports a batch that could not be written. The batch is not
// retried.
type FlushError struct {
	Collection string
	Points     int
	Err        error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("%s: collection %s, %d points: %v", ErrStore, e.Collection, e.Points, e.Err)
}

func (e *FlushError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}
