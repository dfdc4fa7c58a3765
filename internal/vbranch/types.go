// Package vbranch holds the pure data model shared by the rest of the
// engine: virtual branches, ownership claims, and the target a project is
// stacked on. Nothing in this package touches the filesystem or a git
// object database; every exported function here is a total,
// side-effect-free transform.
package vbranch

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// Target is the upstream reference a project's virtual branches are
// stacked on.
type Target struct {
	RemoteRefName      string
	SHA                plumbing.Hash
	PushRemoteOverride string
}

// LineRange is a half-open line range [Start, End) within a file.
type LineRange struct {
	Start int
	End   int
}

// Overlaps reports whether r and other share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// OwnershipClaim is one file path and the sorted, non-overlapping line
// ranges a branch owns within it.
type OwnershipClaim struct {
	FilePath string
	Ranges   []LineRange
}

// Branch is a user-visible working line: a virtual branch.
type Branch struct {
	ID        uuid.UUID
	Name      string
	Notes     string
	Applied   bool
	Upstream  *string
	Head      plumbing.Hash
	Tree      plumbing.Hash
	Ownership []OwnershipClaim
	Order     int
	CreatedTS time.Time
	UpdatedTS time.Time
}

// BranchCreateRequest carries optional overrides for a new branch; unset
// fields take model defaults.
type BranchCreateRequest struct {
	Name      *string
	Ownership []OwnershipClaim
	Order     *int
}

// BranchUpdateRequest carries the same fields as optional overrides over
// an existing branch; nil means "unchanged".
type BranchUpdateRequest struct {
	Name      *string
	Notes     *string
	Ownership []OwnershipClaim
	Order     *int
	Upstream  *string
}
