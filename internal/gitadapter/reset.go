package gitadapter

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// ResetSoft moves HEAD's branch ref to hash without touching the index or
// working tree, the ref-only half of `git reset --soft`. The integration
// engine uses this to move the workspace branch, never to discard staged
// or working-tree state.
func (a *repoAdapter) ResetSoft(hash plumbing.Hash) error {
	head, err := a.RawHead()
	if err != nil {
		return fmt.Errorf("gitadapter: reset-soft: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference {
		return fmt.Errorf("gitadapter: reset-soft: HEAD is detached, refusing")
	}
	branch := head.Target()
	if err := a.UpdateRef(branch, hash, true, "reset --soft"); err != nil {
		return fmt.Errorf("gitadapter: reset-soft: %w", err)
	}
	return nil
}
