// Package integration computes the workspace tree from a target and a set
// of applied virtual branches, and materializes it as the integration
// commit on the fixed integration ref, along with the hidden per-branch
// refs.
package integration

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// IntegrationRefName is the fixed ref the engine materializes the merged
// workspace onto. It is a build-time constant: never configurable at
// runtime, unlike internal/config's other knobs.
const IntegrationRefName plumbing.ReferenceName = "refs/heads/gitbutler/integration"

// HiddenRefPrefix is the namespace hidden per-branch refs live under.
const HiddenRefPrefix = "refs/gitbutler/"

// HiddenRefName returns the hidden ref for a branch with the given name.
func HiddenRefName(branchName string) plumbing.ReferenceName {
	return plumbing.ReferenceName(HiddenRefPrefix + branchName)
}

// Identity is the fixed author/committer used for every commit this engine
// creates on the integration ref or a hidden branch ref.
func Identity() object.Signature {
	return object.Signature{
		Name:  "GitButler",
		Email: "gitbutler@gitbutler.com",
		When:  time.Now(),
	}
}

// WorkspaceMergeConflictError is returned when applied branches cannot be
// merged pairwise-in-sequence onto the target.
type WorkspaceMergeConflictError struct {
	Branch string
}

func (e *WorkspaceMergeConflictError) Error() string {
	return fmt.Sprintf("integration: workspace merge conflict in branch %s", e.Branch)
}

// GetWorkspaceHead computes the tree produced by sequentially three-way
// merging every applied branch's head onto the target, and wraps it in an
// octopus commit whose parents are the applied branches' heads in list
// order. It never writes any ref. With zero applied branches it returns
// target.SHA directly without creating a commit.
func GetWorkspaceHead(a gitadapter.Adapter, target vbranch.Target, branches []vbranch.Branch) (plumbing.Hash, error) {
	targetCommit, err := a.FindCommit(target.SHA)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: target commit: %w", err)
	}
	targetTree, err := targetCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: target tree: %w", err)
	}

	workspaceTree := targetTree
	var parents []plumbing.Hash
	for _, b := range branches {
		if !b.Applied {
			continue
		}
		headCommit, err := a.FindCommit(b.Head)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: branch %s head: %w", b.ID, err)
		}
		theirsTree, err := headCommit.Tree()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: branch %s tree: %w", b.ID, err)
		}

		mergedHash, conflict, err := a.MergeTrees(targetTree, workspaceTree, theirsTree)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: merge branch %s: %w", b.ID, err)
		}
		if conflict {
			return plumbing.ZeroHash, &WorkspaceMergeConflictError{Branch: b.ID.String()}
		}

		merged, err := a.FindTree(mergedHash)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: reload merged tree: %w", err)
		}
		workspaceTree = merged
		parents = append(parents, b.Head)
	}

	if len(parents) == 0 {
		return target.SHA, nil
	}

	id := Identity()
	commitHash, err := a.CreateCommit(id, id, "Workspace Head", workspaceTree.Hash, parents)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: get-workspace-head: create octopus commit: %w", err)
	}
	return commitHash, nil
}

// UpdateGitbutlerIntegration writes the integration commit and refreshes
// every branch's hidden ref. workspaceHead may be the zero hash, in which
// case it is computed via GetWorkspaceHead.
func UpdateGitbutlerIntegration(a gitadapter.Adapter, target vbranch.Target, branches []vbranch.Branch, workspaceHead plumbing.Hash) (plumbing.Hash, error) {
	id := Identity()

	// Force the integration ref back to the target: the clean slate the
	// new integration commit is attached onto.
	if err := a.UpdateRef(IntegrationRefName, target.SHA, true, "reset integration to target"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: reset ref to target: %w", err)
	}

	if workspaceHead.IsZero() {
		wh, err := GetWorkspaceHead(a, target, branches)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		workspaceHead = wh
	}
	workspaceCommit, err := a.FindCommit(workspaceHead)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: workspace head commit: %w", err)
	}
	workspaceTree, err := workspaceCommit.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: workspace tree: %w", err)
	}

	// Record the sidecar before HEAD moves, if it isn't already on the
	// integration ref.
	rawHead, err := a.RawHead()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: read raw head: %w", err)
	}
	if rawHead.Type() == plumbing.SymbolicReference && rawHead.Target() != IntegrationRefName {
		if err := writeSidecarIfAbsent(a, rawHead.Target(), target.SHA); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	// Move HEAD onto the integration ref.
	if err := a.SetSymbolicRef(plumbing.HEAD, IntegrationRefName, "gitbutler integration"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: move head: %w", err)
	}

	// Create the integration commit.
	message, err := buildMessage(a, target, branches)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	integrationHash, err := a.CreateCommit(id, id, message, workspaceTree.Hash, []plumbing.Hash{target.SHA})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: create integration commit: %w", err)
	}
	if err := a.UpdateRef(IntegrationRefName, integrationHash, true, "gitbutler integration commit"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: point integration ref at commit: %w", err)
	}

	if err := a.ReadTreeIntoIndex(workspaceTree.Hash); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("integration: update: read-tree into index: %w", err)
	}

	for _, b := range branches {
		if err := refreshHiddenRef(a, b); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	return integrationHash, nil
}

// refreshHiddenRef keeps one branch's hidden ref valid: it points at
// b.Head when the branch has no uncommitted WIP, or at a synthetic WIP
// commit atop b.Head otherwise.
func refreshHiddenRef(a gitadapter.Adapter, b vbranch.Branch) error {
	headCommit, err := a.FindCommit(b.Head)
	if err != nil {
		return fmt.Errorf("integration: refresh hidden ref: branch %s head: %w", b.ID, err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return fmt.Errorf("integration: refresh hidden ref: branch %s head tree: %w", b.ID, err)
	}
	wipTree, err := a.FindTree(b.Tree)
	if err != nil {
		return fmt.Errorf("integration: refresh hidden ref: branch %s wip tree: %w", b.ID, err)
	}

	target := b.Head
	if wipTree.Hash != headTree.Hash {
		id := Identity()
		wip, err := a.CreateCommit(id, id, "GitButler WIP Commit", wipTree.Hash, []plumbing.Hash{b.Head})
		if err != nil {
			return fmt.Errorf("integration: refresh hidden ref: branch %s wip commit: %w", b.ID, err)
		}
		target = wip
	}

	if err := a.UpdateRef(HiddenRefName(b.Name), target, true, "update virtual branch"); err != nil {
		return fmt.Errorf("integration: refresh hidden ref: branch %s: %w", b.ID, err)
	}
	return nil
}
