package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned synchronously when a tree or an operation is misconfigured.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrParentNotFound is wrapped by every ReferenceError.
	ErrParentNotFound = errors.New("parent not found")

	ErrInvalidNode = errors.New("invalid node")
)

// ReferenceError is returned when a node points at a parent that does not exist.
// Nothing is persisted for the node.
type ReferenceError struct {
	Collection string
	NodeID     string
	ParentID   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("node '%s' references parent '%s' which does not exist in collection '%s'", e.NodeID, e.ParentID, e.Collection)
}

func (e *ReferenceError) Unwrap() error {
	return ErrParentNotFound
}

// StoreError wraps a failure of the underlying datastore. A cascading rewrite that
// fails with a StoreError may have been partially applied; retrying the whole
// mutation is safe.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("datastore %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeError wraps err in a StoreError unless it is nil or already one.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
