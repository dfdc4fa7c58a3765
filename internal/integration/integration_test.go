package integration

import (
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

func newTestRepo(t *testing.T) gitadapter.Adapter {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	a, err := gitadapter.Open(dir)
	require.NoError(t, err)
	return a
}

func sig() object.Signature {
	return object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()}
}

func blob(t *testing.T, a gitadapter.Adapter, content string) gitadapter.TreeLeaf {
	t.Helper()
	repo := a.Repository()
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h, err := repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return gitadapter.TreeLeaf{Mode: filemode.Regular, Hash: h}
}

// commitWithFile creates a commit with a single-file tree atop parents.
func commitWithFile(t *testing.T, a gitadapter.Adapter, path, content string, parents []plumbing.Hash) plumbing.Hash {
	t.Helper()
	tree, err := a.WriteTree(map[string]gitadapter.TreeLeaf{path: blob(t, a, content)})
	require.NoError(t, err)
	hash, err := a.CreateCommit(sig(), sig(), "commit "+content, tree, parents)
	require.NoError(t, err)
	return hash
}

func TestGetWorkspaceHeadNoAppliedBranchesReturnsTargetSHA(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash}

	head, err := GetWorkspaceHead(a, target, nil)
	require.NoError(t, err)
	assert.Equal(t, targetHash, head)
}

func TestGetWorkspaceHeadSingleAppliedBranchCreatesOctopus(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash}

	// The branch keeps a.txt from the target and adds b.txt.
	branchTree, err := a.WriteTree(map[string]gitadapter.TreeLeaf{
		"a.txt": blob(t, a, "base"),
		"b.txt": blob(t, a, "feature"),
	})
	require.NoError(t, err)
	branchHash, err := a.CreateCommit(sig(), sig(), "commit feature", branchTree, []plumbing.Hash{targetHash})
	require.NoError(t, err)
	branch := vbranch.Branch{ID: uuid.New(), Applied: true, Head: branchHash}

	head, err := GetWorkspaceHead(a, target, []vbranch.Branch{branch})
	require.NoError(t, err)
	assert.NotEqual(t, targetHash, head)

	commit, err := a.FindCommit(head)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{branchHash}, commitParentHashes(commit))

	files, err := a.ListTreeFiles(commit.TreeHash)
	require.NoError(t, err)
	assert.Contains(t, files, "a.txt")
	assert.Contains(t, files, "b.txt")
}

func commitParentHashes(c *object.Commit) []plumbing.Hash {
	out := make([]plumbing.Hash, len(c.ParentHashes))
	copy(out, c.ParentHashes)
	return out
}

func TestGetWorkspaceHeadSkipsUnappliedBranches(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash}

	branchHash := commitWithFile(t, a, "b.txt", "feature", []plumbing.Hash{targetHash})
	branch := vbranch.Branch{ID: uuid.New(), Applied: false, Head: branchHash}

	head, err := GetWorkspaceHead(a, target, []vbranch.Branch{branch})
	require.NoError(t, err)
	assert.Equal(t, targetHash, head)
}

func TestGetWorkspaceHeadConflictReturnsWorkspaceMergeConflictError(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash}

	branchOneHash := commitWithFile(t, a, "a.txt", "ours", []plumbing.Hash{targetHash})
	branchTwoHash := commitWithFile(t, a, "a.txt", "theirs", []plumbing.Hash{targetHash})

	branches := []vbranch.Branch{
		{ID: uuid.New(), Applied: true, Head: branchOneHash},
		{ID: uuid.New(), Applied: true, Head: branchTwoHash},
	}

	_, err := GetWorkspaceHead(a, target, branches)
	require.Error(t, err)
	var conflict *WorkspaceMergeConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestUpdateGitbutlerIntegrationMovesHeadAndRefreshesHiddenRef(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash, RemoteRefName: "refs/remotes/origin/main"}

	branchHash := commitWithFile(t, a, "b.txt", "feature", []plumbing.Hash{targetHash})
	branchCommit, err := a.FindCommit(branchHash)
	require.NoError(t, err)
	branch := vbranch.Branch{
		ID:      uuid.New(),
		Name:    "my-feature",
		Applied: true,
		Head:    branchHash,
		Tree:    branchCommit.TreeHash,
	}

	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, IntegrationRefName, "initial"))

	integrationHash, err := UpdateGitbutlerIntegration(a, target, []vbranch.Branch{branch}, plumbing.ZeroHash)
	require.NoError(t, err)
	assert.False(t, integrationHash.IsZero())

	headRef, err := a.RawHead()
	require.NoError(t, err)
	assert.Equal(t, IntegrationRefName, headRef.Target())

	ref, err := a.ReadRef(IntegrationRefName)
	require.NoError(t, err)
	assert.Equal(t, integrationHash, ref.Hash())

	hiddenRef, err := a.ReadRef(HiddenRefName(branch.Name))
	require.NoError(t, err)
	assert.Equal(t, branchHash, hiddenRef.Hash())
}

func TestUpdateGitbutlerIntegrationCreatesWipCommitWhenBranchTreeDiffersFromHead(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash, RemoteRefName: "refs/remotes/origin/main"}

	branchHash := commitWithFile(t, a, "b.txt", "feature", []plumbing.Hash{targetHash})
	wipTree, err := a.WriteTree(map[string]gitadapter.TreeLeaf{
		"b.txt": blob(t, a, "feature"),
		"c.txt": blob(t, a, "uncommitted wip"),
	})
	require.NoError(t, err)
	branch := vbranch.Branch{
		ID:      uuid.New(),
		Name:    "wip-feature",
		Applied: true,
		Head:    branchHash,
		Tree:    wipTree,
	}

	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, IntegrationRefName, "initial"))

	_, err = UpdateGitbutlerIntegration(a, target, []vbranch.Branch{branch}, plumbing.ZeroHash)
	require.NoError(t, err)

	hiddenRef, err := a.ReadRef(HiddenRefName(branch.Name))
	require.NoError(t, err)
	assert.NotEqual(t, branchHash, hiddenRef.Hash())

	wipCommit, err := a.FindCommit(hiddenRef.Hash())
	require.NoError(t, err)
	assert.Equal(t, wipTree, wipCommit.TreeHash)
	assert.Equal(t, []plumbing.Hash{branchHash}, commitParentHashes(wipCommit))
}
