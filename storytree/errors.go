package storytree

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound reports a reference to a node id the session does not hold.
	ErrNodeNotFound = errors.New("node not found")
	// ErrForkIndex reports a fork position outside the source path.
	ErrForkIndex = errors.New("fork index out of range")
	// ErrEmptySession reports an operation that needs a head on a session with no nodes.
	ErrEmptySession = errors.New("session is empty")
	// ErrSnapshotVersion reports a snapshot written by an unknown format version.
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// StructuralError is returned when a tree operation names a node that does
// not exist. It unwraps to ErrNodeNotFound so callers can use errors.Is.
type StructuralError struct {
	Op string
	ID NodeID
}

func (e *StructuralError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v (empty id)", e.Op, ErrNodeNotFound)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.ID, ErrNodeNotFound)
}

func (e *StructuralError) Unwrap() error {
	return ErrNodeNotFound
}

func missingNode(op string, id NodeID) error {
	return &StructuralError{Op: op, ID: id}
}
