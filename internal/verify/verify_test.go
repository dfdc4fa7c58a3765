package verify

import (
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

type fakeStore struct {
	saved []vbranch.Branch
}

func (s *fakeStore) SetBranch(b vbranch.Branch) error {
	s.saved = append(s.saved, b)
	return nil
}

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

func commitWithFile(t *testing.T, a gitadapter.Adapter, path, content string, parents []plumbing.Hash) plumbing.Hash {
	t.Helper()
	tree, err := a.WriteTree(map[string]gitadapter.TreeLeaf{path: blob(t, a, content)})
	require.NoError(t, err)
	hash, err := a.CreateCommit(sig(), sig(), content, tree, parents)
	require.NoError(t, err)
	return hash
}

func TestCheckADetachedHeadErrors(t *testing.T) {
	a := newTestRepo(t)
	commitHash := commitWithFile(t, a, "a.txt", "base", nil)
	require.NoError(t, a.UpdateRef(plumbing.HEAD, commitHash, true, "detach"))

	err := checkA(a)
	assert.ErrorIs(t, err, ErrDetachedHead)
}

func TestCheckAWrongBranchErrors(t *testing.T) {
	a := newTestRepo(t)
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, "refs/heads/main", "wrong branch"))

	err := checkA(a)
	var invalid *InvalidHeadError
	assert.ErrorAs(t, err, &invalid)
}

func TestCheckAOnIntegrationRefPasses(t *testing.T) {
	a := newTestRepo(t)
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, integration.IntegrationRefName, "on integration"))

	assert.NoError(t, checkA(a))
}

func TestCheckBNoForeignCommitsIsClean(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	integrationHash := commitWithFile(t, a, "integration", "workspace", []plumbing.Hash{targetHash})
	require.NoError(t, a.UpdateRef(integration.IntegrationRefName, integrationHash, true, "integration"))
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, integration.IntegrationRefName, "head"))

	store := &fakeStore{}
	target := vbranch.Target{SHA: targetHash}

	result, err := checkB(a, store, target)
	require.NoError(t, err)
	assert.False(t, result.Repaired)
	assert.Empty(t, store.saved)
}

func TestCheckBForeignCommitsRepairsOntoNewBranch(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	integrationHash := commitWithFile(t, a, "integration", "workspace", []plumbing.Hash{targetHash})

	foreign1 := commitWithFile(t, a, "b.txt", "foreign change one", []plumbing.Hash{integrationHash})
	foreign2 := commitWithFile(t, a, "c.txt", "foreign change two", []plumbing.Hash{foreign1})

	require.NoError(t, a.UpdateRef(integration.IntegrationRefName, foreign2, true, "integration"))
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, integration.IntegrationRefName, "head"))

	store := &fakeStore{}
	target := vbranch.Target{SHA: targetHash}

	result, err := checkB(a, store, target)
	require.NoError(t, err)
	require.True(t, result.Repaired)
	assert.Equal(t, "foreign change two", result.NewBranch.Name)
	assert.True(t, result.NewBranch.Applied)
	assert.NotEmpty(t, store.saved)

	headRef, err := a.ReadRef(plumbing.HEAD)
	require.NoError(t, err)
	assert.Equal(t, integrationHash, headRef.Hash())

	newHeadCommit, err := a.FindCommit(result.NewBranch.Head)
	require.NoError(t, err)
	assert.Equal(t, result.NewBranch.Tree, newHeadCommit.TreeHash)
}

func TestCheckBNoIntegrationCommitErrors(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	require.NoError(t, a.UpdateRef(integration.IntegrationRefName, targetHash, true, "integration"))
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, integration.IntegrationRefName, "head"))

	store := &fakeStore{}
	target := vbranch.Target{SHA: targetHash}

	_, err := checkB(a, store, target)
	assert.ErrorIs(t, err, ErrNoIntegrationCommit)
}

func TestSubjectLineTrimsAndTakesFirstLine(t *testing.T) {
	assert.Equal(t, "fix: thing", subjectLine("fix: thing\n\nlonger body here"))
	assert.Equal(t, "single line", subjectLine("  single line  "))
}
