package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycareh/gitbutler/internal/vbranch"
)

func TestUpdateGitbutlerIntegrationEmptyWorkspace(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash, RemoteRefName: "refs/remotes/origin/main"}

	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, IntegrationRefName, "initial"))

	integrationHash, err := UpdateGitbutlerIntegration(a, target, nil, plumbing.ZeroHash)
	require.NoError(t, err)

	ref, err := a.ReadRef(IntegrationRefName)
	require.NoError(t, err)
	assert.Equal(t, integrationHash, ref.Hash())

	commit, err := a.FindCommit(integrationHash)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{targetHash}, commit.ParentHashes)

	targetCommit, err := a.FindCommit(targetHash)
	require.NoError(t, err)
	assert.Equal(t, targetCommit.TreeHash, commit.TreeHash)

	assert.True(t, strings.HasPrefix(commit.Message, "GitButler Integration Commit"))
}

func TestBuildMessageListsAppliedBranchesWithHeadAndOwnedPaths(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash}

	branchHash := commitWithFile(t, a, "b.txt", "feature", []plumbing.Hash{targetHash})
	branches := []vbranch.Branch{
		{
			ID:      uuid.New(),
			Name:    "my-feature",
			Applied: true,
			Head:    branchHash,
			Ownership: []vbranch.OwnershipClaim{
				{FilePath: "b.txt", Ranges: []vbranch.LineRange{{Start: 0, End: 3}}},
			},
		},
		{ID: uuid.New(), Name: "parked", Applied: false, Head: branchHash},
		{ID: uuid.New(), Name: "at-target", Applied: true, Head: targetHash},
	}

	message, err := buildMessage(a, target, branches)
	require.NoError(t, err)

	assert.Contains(t, message, "Here are the branches that are currently applied:")
	assert.Contains(t, message, " - my-feature (refs/gitbutler/my-feature)")
	assert.Contains(t, message, fmt.Sprintf("   branch head: %s", branchHash))
	assert.Contains(t, message, "   - b.txt")
	assert.NotContains(t, message, "parked")
	// A branch sitting exactly at the target gets no head line.
	assert.NotContains(t, message, fmt.Sprintf("   branch head: %s", targetHash))
	assert.Contains(t, message, "https://docs.gitbutler.com")
}

func TestUpdateGitbutlerIntegrationRecordsPreviousBranchOnce(t *testing.T) {
	a := newTestRepo(t)
	targetHash := commitWithFile(t, a, "a.txt", "base", nil)
	target := vbranch.Target{SHA: targetHash, RemoteRefName: "refs/remotes/origin/main"}

	// HEAD starts on an ordinary feature branch, the shape the first
	// integration run transitions away from.
	require.NoError(t, a.UpdateRef("refs/heads/feature", targetHash, true, "init feature"))
	require.NoError(t, a.SetSymbolicRef(plumbing.HEAD, "refs/heads/feature", "checkout feature"))

	first, err := UpdateGitbutlerIntegration(a, target, nil, plumbing.ZeroHash)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(a.GitDir(), "integration"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("refs/heads/feature:%s", targetHash), strings.TrimSpace(string(data)))

	commit, err := a.FindCommit(first)
	require.NoError(t, err)
	assert.Contains(t, commit.Message, "Your previous branch was: refs/heads/feature")
	assert.Contains(t, commit.Message, fmt.Sprintf("The sha for that commit was: %s", targetHash))

	// A later run, now on the integration ref, leaves the sidecar untouched.
	_, err = UpdateGitbutlerIntegration(a, target, nil, plumbing.ZeroHash)
	require.NoError(t, err)

	again, err := os.ReadFile(filepath.Join(a.GitDir(), "integration"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}
