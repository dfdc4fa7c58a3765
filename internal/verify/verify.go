// Package verify checks that HEAD sits on the integration ref and has not
// been pushed forward by commits made directly on it (e.g. by a foreign
// git tool), and repairs that situation by rehoming the foreign commits
// onto a fresh virtual branch. It runs at the start of every mutating
// controller verb.
package verify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/vbranch"
)

// ErrDetachedHead is returned when HEAD is detached; the user must repair
// this manually.
var ErrDetachedHead = errors.New("verify: head is detached")

// ErrNoIntegrationCommit is returned when HEAD has no commit above the
// target, so there is no integration commit to pop, an illegal shape
// requiring upstream repair. Which commit above the target is the
// integration commit is decided by position alone (the oldest one).
var ErrNoIntegrationCommit = errors.New("verify: integration ref has no integration commit")

// InvalidHeadError is returned when HEAD names a branch other than the
// integration ref.
type InvalidHeadError struct {
	Name plumbing.ReferenceName
}

func (e *InvalidHeadError) Error() string {
	return fmt.Sprintf("verify: head points at %s, not the integration ref", e.Name)
}

// BranchPersister is the minimal store contract verify needs to persist a
// repaired branch after each commit is rewritten, so partial progress
// survives a crash.
type BranchPersister interface {
	SetBranch(b vbranch.Branch) error
}

// Result reports what Verify did.
type Result struct {
	// Repaired is true if foreign commits were found and rehomed onto a
	// new branch.
	Repaired bool
	// NewBranch is the branch created to absorb foreign commits, set only
	// when Repaired is true.
	NewBranch vbranch.Branch
}

// Verify checks the project's HEAD: that it points at the integration ref
// (checkA) and that no foreign commits sit on the integration ref above
// the engine's own integration commit (checkB), repairing foreign commits
// by rehoming them onto a newly created, applied virtual branch.
func Verify(a gitadapter.Adapter, store BranchPersister, target vbranch.Target) (Result, error) {
	if err := checkA(a); err != nil {
		return Result{}, err
	}
	return checkB(a, store, target)
}

// checkA verifies HEAD points at the integration ref.
func checkA(a gitadapter.Adapter) error {
	raw, err := a.RawHead()
	if err != nil {
		return fmt.Errorf("verify: read head: %w", err)
	}
	if raw.Type() != plumbing.SymbolicReference {
		return ErrDetachedHead
	}
	if raw.Target() != integration.IntegrationRefName {
		return &InvalidHeadError{Name: raw.Target()}
	}
	return nil
}

// checkB verifies HEAD is clean of foreign commits.
func checkB(a gitadapter.Adapter, store BranchPersister, target vbranch.Target) (Result, error) {
	headRef, err := a.Head()
	if err != nil {
		return Result{}, fmt.Errorf("verify: resolve head: %w", err)
	}
	h := headRef.Hash()
	d := target.SHA

	extras, err := a.LogUntil(h, d)
	if err != nil {
		return Result{}, fmt.Errorf("verify: log head until target: %w", err)
	}
	if len(extras) == 0 {
		return Result{}, ErrNoIntegrationCommit
	}

	integrationCommit := extras[len(extras)-1]
	foreign := extras[:len(extras)-1]
	if len(foreign) == 0 {
		return Result{}, nil
	}

	return repair(a, store, integrationCommit.Hash, foreign)
}

// repair soft-resets HEAD to the popped integration commit, creates a new
// applied branch named after the newest foreign commit's subject, and
// rewrites every foreign commit onto it in chronological order, persisting
// after each rewrite.
func repair(a gitadapter.Adapter, store BranchPersister, integrationCommit plumbing.Hash, foreign []*object.Commit) (Result, error) {
	if err := a.ResetSoft(integrationCommit); err != nil {
		return Result{}, fmt.Errorf("verify: repair: soft-reset to integration commit: %w", err)
	}
	integrationCommitObj, err := a.FindCommit(integrationCommit)
	if err != nil {
		return Result{}, fmt.Errorf("verify: repair: find integration commit: %w", err)
	}

	// foreign is ordered newest-first; foreign[0] is the newest foreign
	// commit, whose subject names the new branch.
	newestSubject := subjectLine(foreign[0].Message)
	now := time.Now()
	branch := vbranch.Branch{
		ID:        uuid.New(),
		Name:      newestSubject,
		Applied:   true,
		Head:      integrationCommit,
		Tree:      integrationCommitObj.TreeHash,
		CreatedTS: now,
		UpdatedTS: now,
	}

	// Reverse foreign into chronological order (oldest first).
	chronological := make([]*object.Commit, len(foreign))
	for i, c := range foreign {
		chronological[len(foreign)-1-i] = c
	}

	for _, c := range chronological {
		newHash, err := a.CreateCommit(c.Author, c.Committer, c.Message, c.TreeHash, []plumbing.Hash{branch.Head})
		if err != nil {
			return Result{}, fmt.Errorf("verify: repair: rewrite foreign commit %s: %w", c.Hash, err)
		}
		branch.Head = newHash
		branch.Tree = c.TreeHash
		branch.UpdatedTS = time.Now()

		if err := store.SetBranch(branch); err != nil {
			return Result{}, fmt.Errorf("verify: repair: persist branch after rewriting %s: %w", c.Hash, err)
		}
	}

	return Result{Repaired: true, NewBranch: branch}, nil
}

// subjectLine returns the first line of a commit message, trimmed.
func subjectLine(message string) string {
	lines := strings.SplitN(message, "\n", 2)
	return strings.TrimSpace(lines[0])
}
