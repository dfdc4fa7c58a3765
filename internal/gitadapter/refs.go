package gitadapter

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"
)

func (a *repoAdapter) ReadRef(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := a.repo.Reference(name, true)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: read ref %s: %w", name, err)
	}
	return ref, nil
}

// UpdateRef force-updates or compare-and-swaps name to hash. No reflog
// entry is written; reflogMsg is threaded through so every call site
// states its intent ("update target", "update virtual branch", ...), and
// it appears in the returned error text when the update fails.
func (a *repoAdapter) UpdateRef(name plumbing.ReferenceName, hash plumbing.Hash, force bool, reflogMsg string) error {
	newRef := plumbing.NewHashReference(name, hash)
	if force {
		if err := a.repo.Storer.SetReference(newRef); err != nil {
			return fmt.Errorf("gitadapter: force-update ref %s (%s): %w", name, reflogMsg, err)
		}
		return nil
	}

	old, err := a.repo.Storer.Reference(name)
	if err != nil && err != plumbing.ErrReferenceNotFound {
		return fmt.Errorf("gitadapter: read ref %s before update: %w", name, err)
	}
	if err := a.repo.Storer.CheckAndSetReference(newRef, old); err != nil {
		if errors.Is(err, storage.ErrReferenceHasChanged) {
			return fmt.Errorf("gitadapter: update ref %s (%s): %w", name, reflogMsg, ErrNotFastForward)
		}
		return fmt.Errorf("gitadapter: update ref %s (%s): %w", name, reflogMsg, err)
	}
	return nil
}

func (a *repoAdapter) SetSymbolicRef(name, target plumbing.ReferenceName, reflogMsg string) error {
	ref := plumbing.NewSymbolicReference(name, target)
	if err := a.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("gitadapter: set symbolic ref %s -> %s (%s): %w", name, target, reflogMsg, err)
	}
	return nil
}

func (a *repoAdapter) RemoveRef(name plumbing.ReferenceName) error {
	if err := a.repo.Storer.RemoveReference(name); err != nil {
		return fmt.Errorf("gitadapter: remove ref %s: %w", name, err)
	}
	return nil
}

// Head returns HEAD resolved to the commit it ultimately points at.
func (a *repoAdapter) Head() (*plumbing.Reference, error) {
	ref, err := a.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("gitadapter: head: %w", err)
	}
	return ref, nil
}

// RawHead returns HEAD unresolved: either a symbolic reference naming the
// branch it tracks, or a hash reference if detached. Callers use this to
// distinguish "HEAD points at a foreign branch" from "HEAD is detached",
// which Head() alone cannot do since it always resolves to a commit.
func (a *repoAdapter) RawHead() (*plumbing.Reference, error) {
	ref, err := a.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: raw head: %w", err)
	}
	return ref, nil
}
