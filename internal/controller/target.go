package controller

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/events"
	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// BaseBranchData is a read-only snapshot of the project's target, the
// commits it is ahead/behind by, used by GetBaseBranchData to answer "what
// is the workspace stacked on, and how far has it moved".
type BaseBranchData struct {
	RemoteRefName string
	SHA           plumbing.Hash
	PushRemote    string
	UpstreamSHA   plumbing.Hash
	Behind        []*plumbing.Hash
}

// SetBaseBranch establishes a project's target for the first time, pointing
// it at remoteRefName's current commit, and reintegrates.
func (c *Controller) SetBaseBranch(ctx context.Context, projectID uuid.UUID, remoteRefName string) (vbranch.Target, error) {
	var target vbranch.Target
	err := c.mutateNoTarget(ctx, projectID, func(ps *projectState) error {
		ref, err := ps.adapter.ReadRef(plumbing.ReferenceName(remoteRefName))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		target = vbranch.Target{RemoteRefName: remoteRefName, SHA: ref.Hash()}
		if err := ps.store.SetDefaultTarget(target); err != nil {
			return translateStoreErr(err)
		}
		if _, err := integration.UpdateGitbutlerIntegration(ps.adapter, target, nil, plumbing.ZeroHash); err != nil {
			return translateIntegrationErr(err)
		}
		return nil
	})
	return target, err
}

// UpdateBaseBranch moves the target forward to the remote ref's current
// commit and reintegrates every applied branch onto the new target,
// surfacing WorkspaceMergeConflictError if any branch no longer merges
// cleanly.
func (c *Controller) UpdateBaseBranch(ctx context.Context, projectID uuid.UUID) (vbranch.Target, error) {
	var target vbranch.Target
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		ref, err := vc.adapter.ReadRef(plumbing.ReferenceName(vc.target.RemoteRefName))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		target = vc.target
		target.SHA = ref.Hash()
		if err := vc.store.SetDefaultTarget(target); err != nil {
			return translateStoreErr(err)
		}
		vc.target = target
		return nil
	})
	return target, err
}

// GetBaseBranchData reports the project's current target and how far ahead
// the remote ref has moved since (a read-only verb).
func (c *Controller) GetBaseBranchData(ctx context.Context, projectID uuid.UUID) (BaseBranchData, error) {
	var data BaseBranchData
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		data.RemoteRefName = vc.target.RemoteRefName
		data.SHA = vc.target.SHA
		data.PushRemote = vc.target.PushRemoteOverride

		ref, err := vc.adapter.ReadRef(plumbing.ReferenceName(vc.target.RemoteRefName))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		data.UpstreamSHA = ref.Hash()
		if data.UpstreamSHA == vc.target.SHA {
			return nil
		}

		commits, err := vc.adapter.LogUntil(data.UpstreamSHA, vc.target.SHA)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		for _, cmt := range commits {
			h := cmt.Hash
			data.Behind = append(data.Behind, &h)
		}
		return nil
	})
	return data, err
}

// FetchFromTarget refreshes the local copy of the target's remote-tracking
// ref via go-git's Fetch, without moving the project's recorded target
// (UpdateBaseBranch does that). It does not go through the usual
// load/verify/reintegrate sequence since it never touches virtual branch
// state, only the underlying remote-tracking ref.
func (c *Controller) FetchFromTarget(ctx context.Context, projectID uuid.UUID) error {
	ps, err := c.projectStateFor(projectID)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if err := checkCancelled(ctx); err != nil {
		return err
	}

	target, err := ps.store.GetDefaultTarget()
	if err != nil {
		return translateStoreErr(err)
	}

	remoteName, err := remoteForRef(target.RemoteRefName)
	if err != nil {
		return err
	}

	err = ps.adapter.Repository().FetchContext(ctx, &git.FetchOptions{RemoteName: remoteName})
	if err != nil && !isAlreadyUpToDate(err) {
		return &GitBackendError{Cause: err}
	}
	return nil
}

// MergeVirtualBranchUpstream folds a branch's configured upstream ref onto
// its current head via the same three-way merge the integration engine
// uses for workspace
// integration, surfacing a conflict rather than attempting resolution.
func (c *Controller) MergeVirtualBranchUpstream(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if b.Upstream == nil {
			return fmt.Errorf("controller: merge upstream: branch %s has no upstream configured", id)
		}

		upstreamRef, err := vc.adapter.ReadRef(plumbing.ReferenceName(*b.Upstream))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		upstreamCommit, err := vc.adapter.FindCommit(upstreamRef.Hash())
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		headCommit, err := vc.adapter.FindCommit(b.Head)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		mergeBase, err := vc.adapter.FindCommit(vc.target.SHA)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		baseTree, err := vc.adapter.FindTree(mergeBase.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		oursTree, err := vc.adapter.FindTree(headCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		theirsTree, err := vc.adapter.FindTree(upstreamCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		mergedHash, conflict, err := vc.adapter.MergeTrees(baseTree, oursTree, theirsTree)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		if conflict {
			return &WorkspaceMergeConflictError{Branch: id}
		}

		identity := integration.Identity()
		message := fmt.Sprintf("Merge %s into %s", *b.Upstream, b.Name)
		newHash, err := vc.adapter.CreateCommit(identity, identity, message, mergedHash, []plumbing.Hash{b.Head, upstreamRef.Hash()})
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		b.Head = newHash
		b.Tree = mergedHash
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// mutateNoTarget runs a verb that establishes the target for the first time
// (SetBaseBranch), so it cannot go through the normal load() path, which
// requires a target to already exist.
func (c *Controller) mutateNoTarget(ctx context.Context, projectID uuid.UUID, fn func(ps *projectState) error) error {
	ps, err := c.projectStateFor(projectID)
	if err != nil {
		return err
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if err := checkCancelled(ctx); err != nil {
		return err
	}
	if err := fn(ps); err != nil {
		return err
	}
	c.bus.Publish(ctx, events.Event{Kind: events.KindCalculateVirtualBranches, ProjectID: projectID})
	return nil
}
