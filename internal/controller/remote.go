package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/integration"
)

// AskpassChannel supplies credentials for a push/fetch against an
// authenticated remote: an injected transport.AuthMethod rather than an
// interactive prompt. Implementations that need an actual credential
// helper or SSH agent are an external collaborator; only this consumed
// interface lives here.
type AskpassChannel interface {
	AuthMethod(remoteName string) (transport.AuthMethod, error)
}

// remoteForRef extracts the remote name from a remote-tracking ref name
// such as "refs/remotes/origin/main".
func remoteForRef(remoteRefName string) (string, error) {
	const prefix = "refs/remotes/"
	if !strings.HasPrefix(remoteRefName, prefix) {
		return "", fmt.Errorf("controller: %q is not a remote-tracking ref", remoteRefName)
	}
	rest := strings.TrimPrefix(remoteRefName, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", fmt.Errorf("controller: %q is not a remote-tracking ref", remoteRefName)
	}
	return parts[0], nil
}

func isAlreadyUpToDate(err error) bool {
	return errors.Is(err, git.NoErrAlreadyUpToDate)
}

// PushVirtualBranch pushes a virtual branch's head (not its hidden WIP
// commit) to the target's remote, to the branch name given by
// remoteBranchName.
func (c *Controller) PushVirtualBranch(ctx context.Context, projectID uuid.UUID, id uuid.UUID, remoteBranchName string, askpass AskpassChannel) error {
	return c.mutate(ctx, projectID, func(vc *verbContext) error {
		b, err := vc.branch(id)
		if err != nil {
			return err
		}

		remoteName := vc.target.PushRemoteOverride
		if remoteName == "" {
			rn, err := remoteForRef(vc.target.RemoteRefName)
			if err != nil {
				return err
			}
			remoteName = rn
		}

		var auth transport.AuthMethod
		if askpass != nil {
			auth, err = askpass.AuthMethod(remoteName)
			if err != nil {
				return fmt.Errorf("controller: push: %w", err)
			}
		}

		dest := plumbing.NewBranchReferenceName(remoteBranchName)
		refSpec := config.RefSpec(fmt.Sprintf("%s:%s", b.Head, dest))

		err = vc.adapter.Repository().PushContext(ctx, &git.PushOptions{
			RemoteName: remoteName,
			RefSpecs:   []config.RefSpec{refSpec},
			Auth:       auth,
		})
		if err != nil && !isAlreadyUpToDate(err) {
			return &GitBackendError{Cause: err}
		}

		upstream := string(dest)
		b.Upstream = &upstream
		return translateStoreErr(vc.store.SetBranch(b))
	})
}

// RemoteBranchSummary is a single entry in ListRemoteBranches: a remote ref
// and the commit it currently points at.
type RemoteBranchSummary struct {
	Name plumbing.ReferenceName
	SHA  plumbing.Hash
}

// ListRemoteBranches lists every remote-tracking ref under refs/remotes
// (read-only).
func (c *Controller) ListRemoteBranches(ctx context.Context, projectID uuid.UUID) ([]RemoteBranchSummary, error) {
	var out []RemoteBranchSummary
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		refs, err := vc.adapter.Repository().References()
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		defer refs.Close()
		return refs.ForEach(func(ref *plumbing.Reference) error {
			if strings.HasPrefix(ref.Name().String(), "refs/remotes/") {
				out = append(out, RemoteBranchSummary{Name: ref.Name(), SHA: ref.Hash()})
			}
			return nil
		})
	})
	return out, err
}

// GetRemoteBranchData reports the commit a remote branch currently points
// at and how far it has diverged from the project's target.
func (c *Controller) GetRemoteBranchData(ctx context.Context, projectID uuid.UUID, remoteRefName string) (BaseBranchData, error) {
	var data BaseBranchData
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		ref, err := vc.adapter.ReadRef(plumbing.ReferenceName(remoteRefName))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		data.RemoteRefName = remoteRefName
		data.SHA = ref.Hash()
		data.UpstreamSHA = vc.target.SHA

		commits, err := vc.adapter.LogUntil(ref.Hash(), vc.target.SHA)
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

// ListRemoteCommitFiles lists the files changed in a remote commit relative
// to its first parent (all files for a root commit), sorted by path.
func (c *Controller) ListRemoteCommitFiles(ctx context.Context, projectID uuid.UUID, commitID plumbing.Hash) ([]string, error) {
	var paths []string
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		commit, err := vc.adapter.FindCommit(commitID)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		files, err := vc.adapter.ListTreeFiles(commit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		parentFiles := map[string]gitadapter.TreeLeaf{}
		if commit.NumParents() > 0 {
			parent, err := commit.Parent(0)
			if err != nil {
				return &GitBackendError{Cause: err}
			}
			parentFiles, err = vc.adapter.ListTreeFiles(parent.TreeHash)
			if err != nil {
				return &GitBackendError{Cause: err}
			}
		}

		for path, leaf := range files {
			if p, ok := parentFiles[path]; !ok || p.Hash != leaf.Hash {
				paths = append(paths, path)
			}
		}
		for path := range parentFiles {
			if _, ok := files[path]; !ok {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		return nil
	})
	return paths, err
}

// CanApplyRemoteBranch reports whether a remote branch's tip would merge
// cleanly onto the workspace as a new applied branch, without persisting
// anything.
func (c *Controller) CanApplyRemoteBranch(ctx context.Context, projectID uuid.UUID, remoteRefName string) (bool, error) {
	var ok bool
	err := c.read(ctx, projectID, func(vc *verbContext) error {
		ref, err := vc.adapter.ReadRef(plumbing.ReferenceName(remoteRefName))
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		headCommit, err := vc.adapter.FindCommit(ref.Hash())
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		targetCommit, err := vc.adapter.FindCommit(vc.target.SHA)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		targetTree, err := vc.adapter.FindTree(targetCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		headTree, err := vc.adapter.FindTree(headCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		workspaceHead, err := integration.GetWorkspaceHead(vc.adapter, vc.target, vc.branches)
		if err != nil {
			if _, isConflict := err.(*integration.WorkspaceMergeConflictError); isConflict {
				ok = false
				return nil
			}
			return &GitBackendError{Cause: err}
		}
		workspaceCommit, err := vc.adapter.FindCommit(workspaceHead)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		workspaceTree, err := vc.adapter.FindTree(workspaceCommit.TreeHash)
		if err != nil {
			return &GitBackendError{Cause: err}
		}

		_, conflict, err := vc.adapter.MergeTrees(targetTree, workspaceTree, headTree)
		if err != nil {
			return &GitBackendError{Cause: err}
		}
		ok = !conflict
		return nil
	})
	return ok, err
}
