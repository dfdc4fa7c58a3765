package gitadapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

func (a *repoAdapter) FindTree(h plumbing.Hash) (*object.Tree, error) {
	t, err := a.repo.TreeObject(h)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: find tree %s: %w", h, err)
	}
	return t, nil
}

// ListTreeFiles returns every blob entry in the tree identified by h,
// flattened to a path -> leaf map. Callers that need to compose a new tree
// from an existing one (e.g. resetting a subset of paths) read it with
// this and rebuild with WriteTree.
func (a *repoAdapter) ListTreeFiles(h plumbing.Hash) (map[string]TreeLeaf, error) {
	t, err := a.FindTree(h)
	if err != nil {
		return nil, err
	}
	return flattenTree(t)
}

// flattenTree walks a tree's blob entries into a flat path -> leaf map,
// iterating recursively through subtrees.
func flattenTree(t *object.Tree) (map[string]TreeLeaf, error) {
	out := make(map[string]TreeLeaf)
	if t == nil {
		return out, nil
	}
	files := t.Files()
	err := files.ForEach(func(f *object.File) error {
		out[f.Name] = TreeLeaf{Mode: f.Mode, Hash: f.Hash}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gitadapter: flatten tree %s: %w", t.Hash, err)
	}
	return out, nil
}

// MergeTrees performs a three-way merge of ours and theirs against base:
// diff base->ours and base->theirs, apply theirs' changes for paths ours
// left untouched, and report a conflict for any path both sides changed to
// different content. It never attempts to resolve a conflict; this engine
// detects conflicts and refuses, it does not run a general merge resolver.
func (a *repoAdapter) MergeTrees(base, ours, theirs *object.Tree) (plumbing.Hash, bool, error) {
	baseToOurs, err := diffPaths(base, ours)
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("gitadapter: merge-trees: diff base->ours: %w", err)
	}
	baseToTheirs, err := diffPaths(base, theirs)
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("gitadapter: merge-trees: diff base->theirs: %w", err)
	}

	result, err := flattenTree(ours)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	theirsFlat, err := flattenTree(theirs)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	for path, theirChange := range baseToTheirs {
		ourChange, ourTouched := baseToOurs[path]
		if !ourTouched {
			applyChange(result, theirsFlat, path, theirChange)
			continue
		}
		if ourChange.action == theirChange.action && leafEqual(result[path], theirsFlat[path]) {
			// Both sides made the same change; nothing further to do.
			continue
		}
		if sameResultingContent(result, theirsFlat, path) {
			continue
		}
		return plumbing.ZeroHash, true, nil
	}

	treeHash, err := a.WriteTree(result)
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("gitadapter: merge-trees: write result: %w", err)
	}
	return treeHash, false, nil
}

type pathChange struct {
	action merkletrie.Action
}

// diffPaths reduces object.Tree.Diff's Changes into a path -> action map
// under the usual Insert/Delete/Modify classification.
func diffPaths(from, to *object.Tree) (map[string]pathChange, error) {
	changes, err := from.Diff(to)
	if err != nil {
		return nil, err
	}
	out := make(map[string]pathChange, len(changes))
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		path := change.To.Name
		if path == "" {
			path = change.From.Name
		}
		out[path] = pathChange{action: action}
	}
	return out, nil
}

func applyChange(result, theirsFlat map[string]TreeLeaf, path string, change pathChange) {
	if change.action == merkletrie.Delete {
		delete(result, path)
		return
	}
	if leaf, ok := theirsFlat[path]; ok {
		result[path] = leaf
	}
}

func sameResultingContent(result, theirsFlat map[string]TreeLeaf, path string) bool {
	rLeaf, rOk := result[path]
	tLeaf, tOk := theirsFlat[path]
	if rOk != tOk {
		return false
	}
	if !rOk {
		return true
	}
	return leafEqual(rLeaf, tLeaf)
}

func leafEqual(a, b TreeLeaf) bool {
	return a.Hash == b.Hash && a.Mode == b.Mode
}

// treeNode is an intermediate node used to build nested tree objects
// bottom-up from a flat path -> leaf map.
type treeNode struct {
	leaf     *TreeLeaf
	children map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

func (n *treeNode) insert(parts []string, leaf TreeLeaf) {
	if len(parts) == 1 {
		child, ok := n.children[parts[0]]
		if !ok {
			child = newTreeNode()
			n.children[parts[0]] = child
		}
		child.leaf = &leaf
		return
	}
	child, ok := n.children[parts[0]]
	if !ok {
		child = newTreeNode()
		n.children[parts[0]] = child
	}
	child.insert(parts[1:], leaf)
}

// WriteTree builds nested tree objects bottom-up from a flat path -> leaf
// map and stores them, returning the root tree's id.
func (a *repoAdapter) WriteTree(files map[string]TreeLeaf) (plumbing.Hash, error) {
	root := newTreeNode()
	for path, leaf := range files {
		root.insert(strings.Split(path, "/"), leaf)
	}
	return a.writeNode(root)
}

// treeSortKey orders entries the way git canonicalizes trees: a directory
// entry sorts as if its name carried a trailing "/", so "foo.txt" comes
// before a subtree "foo". Plain name order would produce self-consistent
// but non-canonical trees whose hashes never match git's own for the same
// content.
func treeSortKey(name string, child *treeNode) string {
	if child.leaf != nil && len(child.children) == 0 {
		return name
	}
	return name + "/"
}

func (a *repoAdapter) writeNode(n *treeNode) (plumbing.Hash, error) {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return treeSortKey(names[i], n.children[names[i]]) < treeSortKey(names[j], n.children[names[j]])
	})

	tree := &object.Tree{}
	for _, name := range names {
		child := n.children[name]
		if child.leaf != nil && len(child.children) == 0 {
			tree.Entries = append(tree.Entries, object.TreeEntry{
				Name: name,
				Mode: child.leaf.Mode,
				Hash: child.leaf.Hash,
			})
			continue
		}
		childHash, err := a.writeNode(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Dir,
			Hash: childHash,
		})
	}

	obj := a.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitadapter: encode tree: %w", err)
	}
	hash, err := a.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("gitadapter: store tree: %w", err)
	}
	return hash, nil
}
