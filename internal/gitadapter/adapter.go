// Package gitadapter provides a typed view over the git object database
// for a single project worktree. The engine's reads and writes of a
// repository go through the Adapter interface; internal/controller also
// imports go-git directly for push and fetch, and other packages use
// go-git's plumbing and object types.
package gitadapter

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Adapter is a typed view over one project's git object database. It never
// hands back mutable aliases into go-git's internal caches: every method
// returns either a value type (plumbing.Hash) or a handle that carries only
// its id and whatever data go-git already materialized when decoding it.
// Repository() is the exception: it returns the live *git.Repository.
type Adapter interface {
	// Refs
	ReadRef(name plumbing.ReferenceName) (*plumbing.Reference, error)
	UpdateRef(name plumbing.ReferenceName, hash plumbing.Hash, force bool, reflogMsg string) error
	SetSymbolicRef(name, target plumbing.ReferenceName, reflogMsg string) error
	RemoveRef(name plumbing.ReferenceName) error
	Head() (*plumbing.Reference, error)
	RawHead() (*plumbing.Reference, error)

	// Objects
	FindCommit(h plumbing.Hash) (*object.Commit, error)
	FindTree(h plumbing.Hash) (*object.Tree, error)
	LogUntil(from, until plumbing.Hash) ([]*object.Commit, error)
	MergeTrees(base, ours, theirs *object.Tree) (merged plumbing.Hash, conflict bool, err error)
	WriteTree(files map[string]TreeLeaf) (plumbing.Hash, error)
	ListTreeFiles(h plumbing.Hash) (map[string]TreeLeaf, error)
	CreateCommit(author, committer object.Signature, message string, tree plumbing.Hash, parents []plumbing.Hash) (plumbing.Hash, error)

	// Index
	ReadIndex() (*index.Index, error)
	WriteIndex(idx *index.Index) error
	ReadTreeIntoIndex(tree plumbing.Hash) error

	// Working copy
	ResetSoft(hash plumbing.Hash) error

	// Underlying repository, exposed for push/fetch which need the full
	// go-git transport surface (internal/controller's remote.go).
	Repository() *git.Repository

	// GitDir returns the project's .git directory, where the integration
	// sidecar file lives.
	GitDir() string
}

// repoAdapter is the concrete Adapter, usually backed by a real on-disk
// worktree opened with git.PlainOpen: a project is a real developer
// checkout, so refs and objects live under .git rather than in an
// in-memory map.
type repoAdapter struct {
	repo   *git.Repository
	gitDir string
}

// Open opens the git repository rooted at worktreePath.
func Open(worktreePath string) (Adapter, error) {
	repo, err := git.PlainOpen(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("gitadapter: open %s: %w", worktreePath, err)
	}
	return &repoAdapter{repo: repo, gitDir: filepath.Join(worktreePath, ".git")}, nil
}

// OpenRepository wraps an already-opened repository, e.g. one built on a
// billy in-memory filesystem with git.Init(memory.NewStorage(), memfs.New()).
// gitDir names the directory sidecar files are written to; for an in-memory
// repository a scratch directory will do.
func OpenRepository(repo *git.Repository, gitDir string) Adapter {
	return &repoAdapter{repo: repo, gitDir: gitDir}
}

func (a *repoAdapter) Repository() *git.Repository {
	return a.repo
}

func (a *repoAdapter) GitDir() string {
	return a.gitDir
}

// TreeLeaf is one file entry destined for WriteTree.
type TreeLeaf struct {
	Mode filemode.FileMode
	Hash plumbing.Hash
}
