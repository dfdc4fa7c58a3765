package vbranch

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
)

// ApplyCreateRequest builds a new Branch from req, the existing branches
// (which set the default Order, one past their highest), and the
// commit it starts at (head) together with that commit's tree (tree),
// taking model defaults for any unspecified field. The
// caller supplies tree rather than this package deriving it, since
// resolving a commit to its tree requires a git object database and
// vbranch stays free of adapter dependencies.
func ApplyCreateRequest(req BranchCreateRequest, existing []Branch, head, tree plumbing.Hash) Branch {
	now := time.Now()
	b := Branch{
		ID:        uuid.New(),
		Name:      "Virtual branch",
		Head:      head,
		Tree:      tree,
		Applied:   true,
		Order:     nextOrder(existing),
		CreatedTS: now,
		UpdatedTS: now,
	}
	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.Ownership != nil {
		b.Ownership = req.Ownership
	}
	if req.Order != nil {
		b.Order = *req.Order
	}
	return b
}

func nextOrder(existing []Branch) int {
	max := -1
	for _, b := range existing {
		if b.Order > max {
			max = b.Order
		}
	}
	return max + 1
}

// ApplyUpdateRequest applies req's overrides onto b, leaving any field
// whose request pointer is nil unchanged. It is total and side-effect-free:
// it returns a new Branch value, never mutating b.
func ApplyUpdateRequest(b Branch, req BranchUpdateRequest) (Branch, error) {
	out := b
	if req.Name != nil {
		if *req.Name == "" {
			return Branch{}, fmt.Errorf("vbranch: branch name must not be empty")
		}
		out.Name = *req.Name
	}
	if req.Notes != nil {
		out.Notes = *req.Notes
	}
	if req.Ownership != nil {
		out.Ownership = req.Ownership
	}
	if req.Order != nil {
		out.Order = *req.Order
	}
	if req.Upstream != nil {
		out.Upstream = req.Upstream
	}
	out.UpdatedTS = time.Now()
	return out, nil
}

// TransferOwnership moves claim's ranges from every other branch in
// branches, applied or not, onto the branch with id to, subtracting first and granting
// second so applied branches keep pairwise disjoint ownership throughout.
func TransferOwnership(branches []Branch, to uuid.UUID, claim OwnershipClaim) ([]Branch, error) {
	out := make([]Branch, len(branches))
	copy(out, branches)

	found := false
	for i := range out {
		if out[i].ID == to {
			found = true
			continue
		}
		out[i].Ownership = SubtractClaim(out[i].Ownership, claim)
	}
	if !found {
		return nil, fmt.Errorf("vbranch: transfer ownership: branch %s not found", to)
	}

	for i := range out {
		if out[i].ID == to {
			out[i].Ownership = AddClaim(out[i].Ownership, claim)
			out[i].UpdatedTS = time.Now()
		}
	}
	return out, nil
}
