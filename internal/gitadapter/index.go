package gitadapter

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

func (a *repoAdapter) ReadIndex() (*index.Index, error) {
	idx, err := a.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("gitadapter: read index: %w", err)
	}
	return idx, nil
}

func (a *repoAdapter) WriteIndex(idx *index.Index) error {
	if err := a.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("gitadapter: write index: %w", err)
	}
	return nil
}

// ReadTreeIntoIndex replaces the on-disk index with the flattened contents
// of tree, the index-only equivalent of `git read-tree`: the index is
// rebuilt from the tree's blob entries one at a time rather than by
// shelling out.
func (a *repoAdapter) ReadTreeIntoIndex(tree plumbing.Hash) error {
	t, err := a.FindTree(tree)
	if err != nil {
		return fmt.Errorf("gitadapter: read-tree-into-index: %w", err)
	}
	leaves, err := flattenTree(t)
	if err != nil {
		return fmt.Errorf("gitadapter: read-tree-into-index: %w", err)
	}

	idx := &index.Index{Version: 2}
	for path, leaf := range leaves {
		idx.Entries = append(idx.Entries, &index.Entry{
			Name: path,
			Mode: leaf.Mode,
			Hash: leaf.Hash,
		})
	}
	return a.WriteIndex(idx)
}
