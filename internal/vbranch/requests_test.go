package vbranch

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCreateRequestDefaults(t *testing.T) {
	head := plumbing.NewHash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tree := plumbing.NewHash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	b := ApplyCreateRequest(BranchCreateRequest{}, nil, head, tree)

	assert.Equal(t, "Virtual branch", b.Name)
	assert.True(t, b.Applied)
	assert.Equal(t, head, b.Head)
	assert.Equal(t, tree, b.Tree)
	assert.Equal(t, 0, b.Order)
}

func TestApplyCreateRequestOrderIncrementsPastExisting(t *testing.T) {
	existing := []Branch{{Order: 0}, {Order: 3}}
	b := ApplyCreateRequest(BranchCreateRequest{}, existing, plumbing.ZeroHash, plumbing.ZeroHash)
	assert.Equal(t, 4, b.Order)
}

func TestApplyUpdateRequestLeavesNilFieldsUnchanged(t *testing.T) {
	original := Branch{Name: "original", Notes: "notes", Order: 1}
	out, err := ApplyUpdateRequest(original, BranchUpdateRequest{})
	require.NoError(t, err)
	assert.Equal(t, original.Name, out.Name)
	assert.Equal(t, original.Notes, out.Notes)
	assert.Equal(t, original.Order, out.Order)
}

func TestApplyUpdateRequestRejectsEmptyName(t *testing.T) {
	empty := ""
	_, err := ApplyUpdateRequest(Branch{Name: "original"}, BranchUpdateRequest{Name: &empty})
	assert.Error(t, err)
}

func TestApplyUpdateRequestOverridesNotes(t *testing.T) {
	notes := "updated notes"
	out, err := ApplyUpdateRequest(Branch{Notes: "old"}, BranchUpdateRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, out.Notes)
}
