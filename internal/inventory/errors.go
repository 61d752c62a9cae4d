package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition reports a status change the transition table rejects
	// or one whose guarded update matched no row.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrNotFound reports a missing row in a mutation.
	ErrNotFound = errors.New("row not found")
	// ErrUnsupportedBackend reports an unknown store backend.
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

func illegalTransition(entity string, id int64, to any) error {
	return fmt.Errorf("%w: %s %d cannot move to %v from its current status", ErrIllegalTransition, entity, id, to)
}
