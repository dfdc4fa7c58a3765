package controller

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// locateSegment walks b's linear ancestry from Head back to (but
// excluding) vc.target.SHA looking for commitID. It returns the commits
// strictly above commitID in chronological order (oldest first), ready for
// rewriteAbove, and the located commit itself. CommitNotFoundError is
// returned if commitID is not found before the walk reaches the target.
func locateSegment(vc *verbContext, b vbranch.Branch, commitID plumbing.Hash) ([]*object.Commit, *object.Commit, error) {
	current, err := vc.adapter.FindCommit(b.Head)
	if err != nil {
		return nil, nil, &GitBackendError{Cause: err}
	}

	var newestFirst []*object.Commit
	for {
		if current.Hash == commitID {
			chronological := make([]*object.Commit, len(newestFirst))
			for i, c := range newestFirst {
				chronological[len(newestFirst)-1-i] = c
			}
			return chronological, current, nil
		}
		if current.Hash == vc.target.SHA {
			return nil, nil, &CommitNotFoundError{OID: commitID.String()}
		}
		newestFirst = append(newestFirst, current)
		if current.NumParents() == 0 {
			return nil, nil, &CommitNotFoundError{OID: commitID.String()}
		}
		parent, err := current.Parent(0)
		if err != nil {
			return nil, nil, &GitBackendError{Cause: err}
		}
		current = parent
	}
}

// rewriteAbove replays a chronologically-ordered segment of commits onto
// a new base, three-way merging each commit's own change (its diff against
// its original parent tree) onto whatever the new base has already
// diverged to. Returns the new tip commit and its tree.
func rewriteAbove(a gitadapter.Adapter, originalParentTree, newParentHash, newParentTree plumbing.Hash, above []*object.Commit) (plumbing.Hash, plumbing.Hash, error) {
	parentHash := newParentHash
	parentTree := newParentTree
	oldParentTree := originalParentTree

	for _, c := range above {
		oldParentTreeObj, err := a.FindTree(oldParentTree)
		if err != nil {
			return plumbing.ZeroHash, plumbing.ZeroHash, &GitBackendError{Cause: err}
		}
		newParentTreeObj, err := a.FindTree(parentTree)
		if err != nil {
			return plumbing.ZeroHash, plumbing.ZeroHash, &GitBackendError{Cause: err}
		}
		commitTreeObj, err := a.FindTree(c.TreeHash)
		if err != nil {
			return plumbing.ZeroHash, plumbing.ZeroHash, &GitBackendError{Cause: err}
		}

		mergedHash, conflict, err := a.MergeTrees(oldParentTreeObj, newParentTreeObj, commitTreeObj)
		if err != nil {
			return plumbing.ZeroHash, plumbing.ZeroHash, &GitBackendError{Cause: err}
		}
		if conflict {
			return plumbing.ZeroHash, plumbing.ZeroHash, &WorkspaceMergeConflictError{}
		}

		newHash, err := a.CreateCommit(c.Author, c.Committer, c.Message, mergedHash, []plumbing.Hash{parentHash})
		if err != nil {
			return plumbing.ZeroHash, plumbing.ZeroHash, &GitBackendError{Cause: err}
		}

		oldParentTree = c.TreeHash
		parentHash = newHash
		parentTree = mergedHash
	}
	return parentHash, parentTree, nil
}

// requireClean fails with ErrDirtyWorkingTree unless b's WIP tree matches
// the tree of its own head commit, the guard for commit-graph mutations
// that need history to be fully committed first.
func requireClean(vc *verbContext, b vbranch.Branch) error {
	headCommit, err := vc.adapter.FindCommit(b.Head)
	if err != nil {
		return &GitBackendError{Cause: err}
	}
	if b.Tree != headCommit.TreeHash {
		return ErrDirtyWorkingTree
	}
	return nil
}

// CommitVirtualBranch commits a branch's current uncommitted tree atop its
// head with the given message, leaving Tree pointed at the new commit's
// tree (no more outstanding WIP — Tree doesn't change value, since it
// already held the tree that just became the new commit's tree).
func (c *Controller) CommitVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, message string) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		identity := integration.Identity()
		newHash, err := vc.adapter.CreateCommit(identity, identity, message, b.Tree, []plumbing.Hash{b.Head})
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		b.Head = newHash
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// AmendVirtualBranch folds a branch's current uncommitted tree into an
// existing commit in its history, replaying any commits above it.
func (c *Controller) AmendVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		above, target, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}

		amendedHash, err := vc.adapter.CreateCommit(target.Author, target.Committer, target.Message, b.Tree, target.ParentHashes)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newHead, newTree, err := rewriteAbove(vc.adapter, target.TreeHash, amendedHash, b.Tree, above)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// UpdateCommitMessage rewrites a commit's message in place, replaying any
// commits above it. Requires a clean tree: the rewrite only ever replays
// original tree content, so outstanding WIP would otherwise be silently
// dropped.
func (c *Controller) UpdateCommitMessage(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash, message string) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		above, target, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}
		newHash, err := vc.adapter.CreateCommit(target.Author, target.Committer, message, target.TreeHash, target.ParentHashes)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		newHead, newTree, err := rewriteAbove(vc.adapter, target.TreeHash, newHash, target.TreeHash, above)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// UndoCommit drops a single commit from the branch's history, replaying the
// commits above it directly onto its parent.
func (c *Controller) UndoCommit(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		above, target, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}
		if len(target.ParentHashes) == 0 {
			return fmt.Errorf("controller: undo commit: %s has no parent to undo onto", commitID)
		}
		parentHash := target.ParentHashes[0]
		parentCommit, err := vc.adapter.FindCommit(parentHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newHead, newTree, err := rewriteAbove(vc.adapter, target.TreeHash, parentHash, parentCommit.TreeHash, above)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// SquashBranchCommit combines a commit with its immediate parent, keeping
// the parent's author/committer and a concatenation of both messages.
func (c *Controller) SquashBranchCommit(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		above, target, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}
		if len(target.ParentHashes) == 0 {
			return fmt.Errorf("controller: squash commit: %s has no parent to squash into", commitID)
		}
		if target.ParentHashes[0] == vc.target.SHA {
			return fmt.Errorf("controller: squash commit: %s sits directly on the base, nothing to squash into", commitID)
		}
		parentCommit, err := vc.adapter.FindCommit(target.ParentHashes[0])
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		message := parentCommit.Message + "\n\n" + target.Message
		squashedHash, err := vc.adapter.CreateCommit(parentCommit.Author, parentCommit.Committer, message, target.TreeHash, parentCommit.ParentHashes)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newHead, newTree, err := rewriteAbove(vc.adapter, target.TreeHash, squashedHash, target.TreeHash, above)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// InsertBlankCommit inserts an empty commit (no tree change) immediately
// above the given commit.
func (c *Controller) InsertBlankCommit(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash, message string) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		above, target, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}
		identity := integration.Identity()
		blankHash, err := vc.adapter.CreateCommit(identity, identity, message, target.TreeHash, []plumbing.Hash{target.Hash})
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newHead, newTree, err := rewriteAbove(vc.adapter, target.TreeHash, blankHash, target.TreeHash, above)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// ReorderCommit moves commitID to sit immediately above newParentID within
// the same branch's currently-applied history segment, replaying whatever
// was between them.
func (c *Controller) ReorderCommit(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID, newParentID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}

		above, moved, err := locateSegment(vc, b, commitID)
		if err != nil {
			return err
		}
		var rest []*object.Commit
		var newParent *object.Commit
		found := false
		for _, cmt := range above {
			if cmt.Hash == newParentID {
				found = true
				newParent = cmt
				continue
			}
			if found {
				rest = append(rest, cmt)
			}
		}
		if !found {
			return &CommitNotFoundError{OID: newParentID.String()}
		}

		movedHash, err := vc.adapter.CreateCommit(moved.Author, moved.Committer, moved.Message, moved.TreeHash, []plumbing.Hash{newParent.Hash})
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newHead, newTree, err := rewriteAbove(vc.adapter, moved.TreeHash, movedHash, moved.TreeHash, rest)
		if err != nil {
			return err
		}
		b.Head = newHead
		b.Tree = newTree
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}

// CherryPickOntoVirtualBranch replays an arbitrary commit's own change (its
// diff against its first parent) onto a branch's current head.
func (c *Controller) CherryPickOntoVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, sourceCommitID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		source, err := vc.adapter.FindCommit(sourceCommitID)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		if source.NumParents() == 0 {
			return fmt.Errorf("controller: cherry-pick: %s has no parent to diff against", sourceCommitID)
		}
		sourceParent, err := source.Parent(0)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		headCommit, err := vc.adapter.FindCommit(b.Head)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		baseTree, err := vc.adapter.FindTree(sourceParent.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		oursTree, err := vc.adapter.FindTree(headCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		theirsTree, err := vc.adapter.FindTree(source.TreeHash)
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

		newHash, err := vc.adapter.CreateCommit(source.Author, source.Committer, source.Message, mergedHash, []plumbing.Hash{b.Head})
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

// MoveCommit moves a commit from one branch onto the tip of another,
// replaying the source branch's remaining history without it.
func (c *Controller) MoveCommit(ctx context.Context, projectID uuid.UUID, sourceBranchID, destBranchID uuid.UUID, commitID plumbing.Hash) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		source, err := vc.branch(sourceBranchID)
		if err != nil {
			return err
		}
		dest, err := vc.branch(destBranchID)
		if err != nil {
			return err
		}
		if err := requireClean(vc, source); err != nil {
			return err
		}
		if err := requireClean(vc, dest); err != nil {
			return err
		}

		above, moved, err := locateSegment(vc, source, commitID)
		if err != nil {
			return err
		}
		if len(moved.ParentHashes) == 0 {
			return fmt.Errorf("controller: move commit: %s has no parent", commitID)
		}
		movedParent, err := vc.adapter.FindCommit(moved.ParentHashes[0])
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newSourceHead, newSourceTree, err := rewriteAbove(vc.adapter, moved.TreeHash, moved.ParentHashes[0], movedParent.TreeHash, above)
		if err != nil {
			return err
		}
		source.Head = newSourceHead
		source.Tree = newSourceTree

		movedHash, err := vc.adapter.CreateCommit(moved.Author, moved.Committer, moved.Message, moved.TreeHash, []plumbing.Hash{dest.Head})
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		dest.Head = movedHash
		dest.Tree = moved.TreeHash

		if err := vc.store.SetBranch(source); err != nil {
			return translateStoreErr(err)
		}
		return translateStoreErr(vc.store.SetBranch(dest))
	})
}

// MoveCommitFile moves a single file's change within commitID off the
// source branch and onto a new commit on the destination branch, leaving
// the rest of commitID's change in place.
func (c *Controller) MoveCommitFile(ctx context.Context, projectID uuid.UUID, sourceBranchID, destBranchID uuid.UUID, commitID plumbing.Hash, path string) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		source, err := vc.branch(sourceBranchID)
		if err != nil {
			return err
		}
		dest, err := vc.branch(destBranchID)
		if err != nil {
			return err
		}
		if err := requireClean(vc, source); err != nil {
			return err
		}
		if err := requireClean(vc, dest); err != nil {
			return err
		}

		above, moved, err := locateSegment(vc, source, commitID)
		if err != nil {
			return err
		}
		if len(moved.ParentHashes) == 0 {
			return fmt.Errorf("controller: move commit file: %s has no parent", commitID)
		}
		parentCommit, err := vc.adapter.FindCommit(moved.ParentHashes[0])
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		parentFiles, err := vc.adapter.ListTreeFiles(parentCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		movedFiles, err := vc.adapter.ListTreeFiles(moved.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		remaining := make(map[string]gitadapter.TreeLeaf, len(movedFiles))
		for p, leaf := range movedFiles {
			remaining[p] = leaf
		}
		if leaf, ok := parentFiles[path]; ok {
			remaining[path] = leaf
		} else {
			delete(remaining, path)
		}
		remainderTree, err := vc.adapter.WriteTree(remaining)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		remainderHash, err := vc.adapter.CreateCommit(moved.Author, moved.Committer, moved.Message, remainderTree, moved.ParentHashes)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		newSourceHead, newSourceTree, err := rewriteAbove(vc.adapter, moved.TreeHash, remainderHash, remainderTree, above)
		if err != nil {
			return err
		}
		source.Head = newSourceHead
		source.Tree = newSourceTree

		destHeadCommit, err := vc.adapter.FindCommit(dest.Head)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		destFiles, err := vc.adapter.ListTreeFiles(destHeadCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		if leaf, ok := movedFiles[path]; ok {
			destFiles[path] = leaf
		}
		destTree, err := vc.adapter.WriteTree(destFiles)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		destHash, err := vc.adapter.CreateCommit(moved.Author, moved.Committer, fmt.Sprintf("Move %s: %s", path, moved.Message), destTree, []plumbing.Hash{dest.Head})
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		dest.Head = destHash
		dest.Tree = destTree

		// The moved file's ownership claim follows its content, so claims
		// and tree state never diverge between the two branches.
		for _, cl := range source.Ownership {
			if cl.FilePath != path {
				continue
			}
			pair, terr := vbranch.TransferOwnership([]vbranch.Branch{source, dest}, dest.ID, cl)
			if terr != nil {
				return terr
			}
			source, dest = pair[0], pair[1]
			break
		}

		if err := vc.store.SetBranch(source); err != nil {
			return translateStoreErr(err)
		}
		return translateStoreErr(vc.store.SetBranch(dest))
	})
}

// ResetVirtualBranch moves a branch's head back to an earlier commit in its
// own history, discarding everything above it.
func (c *Controller) ResetVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, commitID plumbing.Hash) (vbranch.Branch, error) {
	var updated vbranch.Branch
	err := c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}
		if err := requireClean(vc, b); err != nil {
			return err
		}
		if _, _, err := locateSegment(vc, b, commitID); err != nil {
			return err
		}
		target, err := vc.adapter.FindCommit(commitID)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		b.Head = commitID
		b.Tree = target.TreeHash
		updated = b
		return translateStoreErr(vc.store.SetBranch(b))
	})
	return updated, err
}
