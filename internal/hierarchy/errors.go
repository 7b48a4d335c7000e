package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrContractViolation is returned when a snapshot breaks the id rules
	// the merge relies on (duplicate ids, an id equal to UnassignedID)
	ErrContractViolation = errors.New("snapshot contract violation")

	// ErrInvalidChange is returned by StageChecked for changes that cannot
	// apply to the current tree
	ErrInvalidChange = errors.New("invalid change")
)

// SnapshotError wraps a failure to enumerate devices. The tree keeps its
// last known-good state.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("device snapshot failed: %v", e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// ApplyError wraps a rejected batch. The pending queue is left intact.
type ApplyError struct {
	BatchID string
	Changes int
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply batch %s (%d changes) failed: %v", e.BatchID, e.Changes, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// PartialApplyError reports a batch the environment applied only in part.
// The first Applied changes took effect and left the pending queue; the rest
// are still staged. Environments return it with Applied and Err set.
type PartialApplyError struct {
	BatchID string
	Applied int
	Changes int
	Err     error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("apply batch %s stopped after %d of %d changes: %v", e.BatchID, e.Applied, e.Changes, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }

// EnvError wraps a failed immediate operation against the environment
type EnvError struct {
	Op  string
	Err error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }
