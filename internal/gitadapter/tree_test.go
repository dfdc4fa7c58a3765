package gitadapter

import (
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Adapter {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	a, err := Open(dir)
	require.NoError(t, err)
	return a
}

func sig() object.Signature {
	return object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()}
}

func blob(t *testing.T, a Adapter, content string) TreeLeaf {
	t.Helper()
	ra := a.(*repoAdapter)
	obj := ra.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h, err := ra.repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return TreeLeaf{Mode: filemode.Regular, Hash: h}
}

func TestWriteTreeAndListTreeFilesRoundTrip(t *testing.T) {
	a := newTestRepo(t)
	files := map[string]TreeLeaf{
		"README.md":    blob(t, a, "hello"),
		"src/main.go":  blob(t, a, "package main"),
		"src/lib/a.go": blob(t, a, "package lib"),
	}

	treeHash, err := a.WriteTree(files)
	require.NoError(t, err)

	got, err := a.ListTreeFiles(treeHash)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for path, leaf := range files {
		assert.Equal(t, leaf.Hash, got[path].Hash, "path %s", path)
	}
}

func TestWriteTreeOrdersDirectoriesCanonically(t *testing.T) {
	a := newTestRepo(t)
	treeHash, err := a.WriteTree(map[string]TreeLeaf{
		"foo.txt":       blob(t, a, "file"),
		"foo/inner.txt": blob(t, a, "nested"),
	})
	require.NoError(t, err)

	tree, err := a.FindTree(treeHash)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)
	// Directory entries sort as if suffixed with "/", so "foo.txt" (0x2e)
	// precedes the "foo" subtree (0x2f).
	assert.Equal(t, "foo.txt", tree.Entries[0].Name)
	assert.Equal(t, "foo", tree.Entries[1].Name)
}

func TestMergeTreesNoConflict(t *testing.T) {
	a := newTestRepo(t)
	base, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "base-a"),
		"b.txt": blob(t, a, "base-b"),
	})
	require.NoError(t, err)
	baseTree, err := a.FindTree(base)
	require.NoError(t, err)

	ours, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "ours-a"),
		"b.txt": blob(t, a, "base-b"),
	})
	require.NoError(t, err)
	oursTree, err := a.FindTree(ours)
	require.NoError(t, err)

	theirs, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "base-a"),
		"b.txt": blob(t, a, "theirs-b"),
	})
	require.NoError(t, err)
	theirsTree, err := a.FindTree(theirs)
	require.NoError(t, err)

	mergedHash, conflict, err := a.MergeTrees(baseTree, oursTree, theirsTree)
	require.NoError(t, err)
	require.False(t, conflict)

	files, err := a.ListTreeFiles(mergedHash)
	require.NoError(t, err)
	aContent := files["a.txt"]
	bContent := files["b.txt"]
	assert.NotEqual(t, plumbing.ZeroHash, aContent.Hash)
	assert.NotEqual(t, plumbing.ZeroHash, bContent.Hash)
}

func TestMergeTreesConflict(t *testing.T) {
	a := newTestRepo(t)
	base, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "base-a"),
	})
	require.NoError(t, err)
	baseTree, err := a.FindTree(base)
	require.NoError(t, err)

	ours, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "ours-a"),
	})
	require.NoError(t, err)
	oursTree, err := a.FindTree(ours)
	require.NoError(t, err)

	theirs, err := a.WriteTree(map[string]TreeLeaf{
		"a.txt": blob(t, a, "theirs-a"),
	})
	require.NoError(t, err)
	theirsTree, err := a.FindTree(theirs)
	require.NoError(t, err)

	_, conflict, err := a.MergeTrees(baseTree, oursTree, theirsTree)
	require.NoError(t, err)
	assert.True(t, conflict)
}
