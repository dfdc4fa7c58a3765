package controller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// UnapplyOwnership shrinks the branch identified by id's own ownership by
// claim, relinquishing those ranges rather than handing them to another
// branch: afterwards nobody owns them. The subtraction happens
// range-by-range and never leaves an empty claim entry
// (vbranch.SubtractClaim).
func (c *Controller) UnapplyOwnership(ctx context.Context, projectID uuid.UUID, id uuid.UUID, claim vbranch.OwnershipClaim) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		b.Ownership = vbranch.SubtractClaim(b.Ownership, claim)
		if err := vc.store.SetBranch(b); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
}

// ResetFiles discards a branch's uncommitted WIP for the given paths,
// resetting b.Tree back to tree(b.Head) for just those paths while leaving
// every other path's WIP content untouched.
func (c *Controller) ResetFiles(ctx context.Context, projectID uuid.UUID, id uuid.UUID, paths []string) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}

		headCommit, err := vc.adapter.FindCommit(b.Head)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		headFiles, err := vc.adapter.ListTreeFiles(headCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		wipFiles, err := vc.adapter.ListTreeFiles(b.Tree)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		result := make(map[string]gitadapter.TreeLeaf, len(wipFiles))
		for path, leaf := range wipFiles {
			result[path] = leaf
		}
		for _, path := range paths {
			if leaf, ok := headFiles[path]; ok {
				result[path] = leaf
			} else {
				delete(result, path)
			}
		}

		newTree, err := vc.adapter.WriteTree(result)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		b.Tree = newTree
		b.UpdatedTS = time.Now()
		if err := vc.store.SetBranch(b); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
}
