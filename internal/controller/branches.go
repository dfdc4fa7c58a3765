package controller

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// ListVirtualBranches returns every virtual branch for a project in order
// (a read-only verb).
func (c *Controller) ListVirtualBranches(ctx context.Context, projectID uuid.UUID) ([]vbranch.Branch, error) {
	var out []vbranch.Branch
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		out = vc.branches
		return nil
	})
	return out, err
}

// CreateVirtualBranch creates a new applied branch starting at the
// project's current target, persists it, and reintegrates.
func (c *Controller) CreateVirtualBranch(ctx context.Context, projectID uuid.UUID, req vbranch.BranchCreateRequest) (vbranch.Branch, error) {
	var created vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		targetCommit, err := vc.adapter.FindCommit(vc.target.SHA)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		created = vbranch.ApplyCreateRequest(req, vc.branches, vc.target.SHA, targetCommit.TreeHash)
		if vbranch.OwnershipOverlaps(vc.branches, created) {
			return ErrOwnershipOverlap
		}
		if err := vc.store.SetBranch(created); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
	return created, err
}

// CreateVirtualBranchFromBranch creates a new applied virtual branch whose
// head starts at an existing commit (e.g. a local or remote branch tip)
// rather than the target, used to fold an existing git branch into the
// workspace. Unlike CreateVirtualBranch, the new head carries arbitrary
// content, so it is trial-merged against the target and the already-applied
// branches first and only persisted once that check passes — a conflict
// leaves the persisted branch set unchanged, the same guard ApplyBranch
// applies.
func (c *Controller) CreateVirtualBranchFromBranch(ctx context.Context, projectID uuid.UUID, name string, head plumbing.Hash) (vbranch.Branch, error) {
	var created vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		headCommit, err := vc.adapter.FindCommit(head)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		req := vbranch.BranchCreateRequest{Name: &name}
		created = vbranch.ApplyCreateRequest(req, vc.branches, head, headCommit.TreeHash)

		trial := make([]vbranch.Branch, 0, len(vc.branches)+1)
		trial = append(trial, vc.branches...)
		trial = append(trial, created)
		if _, err := integration.GetWorkspaceHead(vc.adapter, vc.target, trial); err != nil {
			return translateIntegrationErr(err)
		}

		if err := vc.store.SetBranch(created); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
	return created, err
}

// UpdateVirtualBranch applies req's overrides onto an existing branch.
func (c *Controller) UpdateVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, req vbranch.BranchUpdateRequest) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		existing, err := vc.branch(id)
		if err != nil {
			return err
		}
		updated, err = vbranch.ApplyUpdateRequest(existing, req)
		if err != nil {
			return err
		}
		if vbranch.OwnershipOverlaps(vc.branches, updated) {
			return ErrOwnershipOverlap
		}
		if err := vc.store.SetBranch(updated); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
	return updated, err
}

// DeleteVirtualBranch removes a branch. It requires an explicit
// UnapplyBranch first: deleting an applied branch fails with
// ErrBranchStillApplied. It also removes the branch's hidden ref so no
// residual ref is left under refs/gitbutler/.
func (c *Controller) DeleteVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if b.Applied {
			return ErrBranchStillApplied
		}
		if err := vc.adapter.RemoveRef(integration.HiddenRefName(b.Name)); err != nil {
			return &GitBackendError{Cause: err}
		}
		if err := vc.store.DeleteBranch(id); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
}

// ApplyBranch marks a branch applied, so its head begins contributing to
// the workspace tree. It first validates that the branch merges cleanly
// against the target and the other already-applied branches, the same
// trial GetWorkspaceHead call CanApplyVirtualBranch performs, and only
// persists applied=true once that check passes, so a conflict leaves the
// persisted applied-set unchanged.
func (c *Controller) ApplyBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}

		trial := make([]vbranch.Branch, len(vc.branches))
		copy(trial, vc.branches)
		for i := range trial {
			if trial[i].ID == id {
				trial[i].Applied = true
			}
		}
		if _, err := integration.GetWorkspaceHead(vc.adapter, vc.target, trial); err != nil {
			return translateIntegrationErr(err)
		}

		b.Applied = true
		if vbranch.OwnershipOverlaps(vc.branches, b) {
			return ErrOwnershipOverlap
		}
		if err := vc.store.SetBranch(b); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
}

// UnapplyBranch marks a branch unapplied, removing its contribution from
// the workspace tree.
func (c *Controller) UnapplyBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		b.Applied = false
		if err := vc.store.SetBranch(b); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
}

// CanApplyVirtualBranch reports whether applying the given branch would
// merge cleanly against the target and the other already-applied branches,
// without persisting anything (a read-only verb).
func (c *Controller) CanApplyVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (bool, error) {
	var ok bool
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		if _, err := vc.branch(id); err != nil {
			return err
		}
		trial := make([]vbranch.Branch, len(vc.branches))
		copy(trial, vc.branches)
		for i := range trial {
			if trial[i].ID == id {
				trial[i].Applied = true
			}
		}
		_, err := integration.GetWorkspaceHead(vc.adapter, vc.target, trial)
		ok = err == nil
		return nil
	})
	return ok, err
}
