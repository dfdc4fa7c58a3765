package gitadapter

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func (a *repoAdapter) FindCommit(h plumbing.Hash) (*object.Commit, error) {
	c, err := a.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: find commit %s: %w", h, err)
	}
	return c, nil
}

// LogUntil walks parent-0 ancestry starting at from, stopping at (and not
// including) until. It assumes the segment between from and until is
// linear, which holds for the integration ref by construction. The result
// is ordered newest-first.
func (a *repoAdapter) LogUntil(from, until plumbing.Hash) ([]*object.Commit, error) {
	var commits []*object.Commit

	current, err := a.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: log-until: resolve start %s: %w", from, err)
	}

	for {
		if current.Hash == until {
			return commits, nil
		}
		commits = append(commits, current)
		if current.NumParents() == 0 {
			return commits, nil
		}
		parent, err := current.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("gitadapter: log-until: walk parent of %s: %w", current.Hash, err)
		}
		current = parent
	}
}

// CreateCommit builds a commit object with explicit author, committer,
// message, tree and parent list and stores it, returning its id. It does
// not touch any ref or the working tree. The object is constructed by hand
// (NewEncodedObject / Encode / SetEncodedObject) rather than through
// go-git's Worktree.Commit, since the latter requires a live worktree and
// index state this engine does not always have checked out (e.g. building
// a WIP commit or rewriting history on a branch that is not currently the
// workspace).
func (a *repoAdapter) CreateCommit(author, committer object.Signature, message string, tree plumbing.Hash, parents []plumbing.Hash) (plumbing.Hash, error) {
	commit := &object.Commit{
		Author:       author,
		Committer:    committer,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}

	obj := a.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitadapter: encode commit: %w", err)
	}

	hash, err := a.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitadapter: store commit: %w", err)
	}
	return hash, nil
}
