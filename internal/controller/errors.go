package controller

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel and typed errors surfaced by the controller. Every mutating
// verb returns one of these (or wraps a cause with one of the *Error
// types) rather than a bare error, so callers, including cmd/server's RPC
// binding, can translate them into stable codes.
var (
	ErrTargetMissing       = errors.New("controller: no default target set")
	ErrDetachedHead        = errors.New("controller: head is detached")
	ErrNoIntegrationCommit = errors.New("controller: integration ref has no integration commit")
	ErrDirtyWorkingTree    = errors.New("controller: operation requires a committed working tree")
	ErrOwnershipOverlap    = errors.New("controller: ownership claim would overlap an applied branch")
	ErrCancelled           = errors.New("controller: operation cancelled")
	ErrBranchStillApplied  = errors.New("controller: branch is still applied, unapply it first")
)

// InvalidHeadError reports that HEAD points at a branch other than the
// integration ref.
type InvalidHeadError struct {
	Name string
}

func (e *InvalidHeadError) Error() string {
	return fmt.Sprintf("controller: head points at %s, not the integration ref", e.Name)
}

// WorkspaceMergeConflictError reports that applied branches did not merge
// cleanly onto the target.
type WorkspaceMergeConflictError struct {
	Branch uuid.UUID
}

func (e *WorkspaceMergeConflictError) Error() string {
	return fmt.Sprintf("controller: workspace merge conflict involving branch %s", e.Branch)
}

// BranchNotFoundError reports a reference to a virtual branch id that does
// not exist in the project's store.
type BranchNotFoundError struct {
	ID uuid.UUID
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("controller: branch %s not found", e.ID)
}

// CommitNotFoundError reports a reference to a commit id that is not in the
// branch's linear ancestry segment being operated on.
type CommitNotFoundError struct {
	OID string
}

func (e *CommitNotFoundError) Error() string {
	return fmt.Sprintf("controller: commit %s not found", e.OID)
}

// GitBackendError wraps a failure from the git adapter (I/O, corruption).
type GitBackendError struct {
	Cause error
}

func (e *GitBackendError) Error() string { return fmt.Sprintf("controller: git backend: %v", e.Cause) }
func (e *GitBackendError) Unwrap() error { return e.Cause }

// PersistenceError wraps a failure from the virtual-branch store.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("controller: persistence: %v", e.Cause) }
func (e *PersistenceError) Unwrap() error { return e.Cause }
