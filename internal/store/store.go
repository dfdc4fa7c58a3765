// Package store persists a project's default target and virtual branches
// to virtual_branches.toml in its gitbutler state directory. It is the
// only package that knows the on-disk document shape; everything else
// talks in vbranch.Branch / vbranch.Target values.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/vbranch"
)

// ErrTargetMissing is returned by GetDefaultTarget when no target has been
// set for the project yet.
var ErrTargetMissing = fmt.Errorf("store: default target not set")

// Store reads and writes a single project's virtual_branches.toml document.
type Store struct {
	dir string // gitbutler state directory, <worktree>/.git/gitbutler
}

// New returns a Store rooted at dir, the project's gitbutler state
// directory. The directory is created on first write if absent.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) docPath() string {
	return filepath.Join(s.dir, "virtual_branches.toml")
}

// document is the on-disk shape: one default target plus the full branch
// list, always replaced as a whole.
type document struct {
	DefaultTarget *tomlTarget  `toml:"default_target"`
	Branches      []tomlBranch `toml:"branches"`
}

type tomlTarget struct {
	RefName    string  `toml:"ref_name"`
	SHA        string  `toml:"sha"`
	PushRemote *string `toml:"push_remote,omitempty"`
}

type tomlRange struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

type tomlClaim struct {
	Path   string      `toml:"path"`
	Ranges []tomlRange `toml:"ranges"`
}

type tomlBranch struct {
	ID        string      `toml:"id"`
	Name      string      `toml:"name"`
	Notes     string      `toml:"notes"`
	Applied   bool        `toml:"applied"`
	Upstream  *string     `toml:"upstream,omitempty"`
	Head      string      `toml:"head"`
	Tree      string      `toml:"tree"`
	Ownership []tomlClaim `toml:"ownership"`
	Order     int         `toml:"order"`
	CreatedTS time.Time   `toml:"created_ts"`
	UpdatedTS time.Time   `toml:"updated_ts"`
}

// read loads the document from disk, returning an empty document if the
// file does not exist yet (a project with no branches and no target is a
// valid starting state).
func (s *Store) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.docPath())
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("store: read %s: %w", s.docPath(), err)
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return doc, fmt.Errorf("store: decode %s: %w", s.docPath(), err)
	}
	return doc, nil
}

// write replaces the whole document atomically: encode to a temp file in
// the same directory, fsync, then rename over the real path, so a crash
// mid-write leaves the previous version recoverable.
func (s *Store) write(doc document) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, "virtual_branches-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.docPath()); err != nil {
		return fmt.Errorf("store: rename into place: %w", err)
	}
	return nil
}

// GetDefaultTarget returns the project's target, failing with
// ErrTargetMissing if one has never been set.
func (s *Store) GetDefaultTarget() (vbranch.Target, error) {
	doc, err := s.read()
	if err != nil {
		return vbranch.Target{}, err
	}
	if doc.DefaultTarget == nil {
		return vbranch.Target{}, ErrTargetMissing
	}
	t := vbranch.Target{
		RemoteRefName: doc.DefaultTarget.RefName,
		SHA:           plumbing.NewHash(doc.DefaultTarget.SHA),
	}
	if doc.DefaultTarget.PushRemote != nil {
		t.PushRemoteOverride = *doc.DefaultTarget.PushRemote
	}
	return t, nil
}

// SetDefaultTarget persists t as the project's target.
func (s *Store) SetDefaultTarget(t vbranch.Target) error {
	doc, err := s.read()
	if err != nil {
		return err
	}
	tt := &tomlTarget{RefName: t.RemoteRefName, SHA: t.SHA.String()}
	if t.PushRemoteOverride != "" {
		pr := t.PushRemoteOverride
		tt.PushRemote = &pr
	}
	doc.DefaultTarget = tt
	return s.write(doc)
}

// ListBranches returns branches ordered by Order ascending, ties broken by
// CreatedTS then ID.
func (s *Store) ListBranches() ([]vbranch.Branch, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]vbranch.Branch, 0, len(doc.Branches))
	for _, tb := range doc.Branches {
		b, err := fromTOML(tb)
		if err != nil {
			return nil, fmt.Errorf("store: decode branch %s: %w", tb.ID, err)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if !out[i].CreatedTS.Equal(out[j].CreatedTS) {
			return out[i].CreatedTS.Before(out[j].CreatedTS)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// GetBranch returns a single branch by id.
func (s *Store) GetBranch(id uuid.UUID) (vbranch.Branch, error) {
	branches, err := s.ListBranches()
	if err != nil {
		return vbranch.Branch{}, err
	}
	for _, b := range branches {
		if b.ID == id {
			return b, nil
		}
	}
	return vbranch.Branch{}, fmt.Errorf("store: branch %s not found", id)
}

// SetBranch replaces the branch with matching id, inserting it if absent,
// preserving Order.
func (s *Store) SetBranch(b vbranch.Branch) error {
	doc, err := s.read()
	if err != nil {
		return err
	}
	tb := toTOML(b)
	for i, existing := range doc.Branches {
		if existing.ID == tb.ID {
			doc.Branches[i] = tb
			return s.write(doc)
		}
	}
	doc.Branches = append(doc.Branches, tb)
	return s.write(doc)
}

// DeleteBranch removes the branch with the given id, if present.
func (s *Store) DeleteBranch(id uuid.UUID) error {
	doc, err := s.read()
	if err != nil {
		return err
	}
	out := make([]tomlBranch, 0, len(doc.Branches))
	idStr := id.String()
	for _, tb := range doc.Branches {
		if tb.ID == idStr {
			continue
		}
		out = append(out, tb)
	}
	doc.Branches = out
	return s.write(doc)
}

func toTOML(b vbranch.Branch) tomlBranch {
	tb := tomlBranch{
		ID:        b.ID.String(),
		Name:      b.Name,
		Notes:     b.Notes,
		Applied:   b.Applied,
		Upstream:  b.Upstream,
		Head:      b.Head.String(),
		Tree:      b.Tree.String(),
		Order:     b.Order,
		CreatedTS: b.CreatedTS,
		UpdatedTS: b.UpdatedTS,
	}
	for _, c := range b.Ownership {
		tc := tomlClaim{Path: c.FilePath}
		for _, r := range c.Ranges {
			tc.Ranges = append(tc.Ranges, tomlRange{Start: r.Start, End: r.End})
		}
		tb.Ownership = append(tb.Ownership, tc)
	}
	return tb
}

func fromTOML(tb tomlBranch) (vbranch.Branch, error) {
	id, err := uuid.Parse(tb.ID)
	if err != nil {
		return vbranch.Branch{}, fmt.Errorf("parse id: %w", err)
	}
	b := vbranch.Branch{
		ID:        id,
		Name:      tb.Name,
		Notes:     tb.Notes,
		Applied:   tb.Applied,
		Upstream:  tb.Upstream,
		Head:      plumbing.NewHash(tb.Head),
		Tree:      plumbing.NewHash(tb.Tree),
		Order:     tb.Order,
		CreatedTS: tb.CreatedTS,
		UpdatedTS: tb.UpdatedTS,
	}
	for _, tc := range tb.Ownership {
		c := vbranch.OwnershipClaim{FilePath: tc.Path}
		for _, r := range tc.Ranges {
			c.Ranges = append(c.Ranges, vbranch.LineRange{Start: r.Start, End: r.End})
		}
		b.Ownership = append(b.Ownership, c)
	}
	return b, nil
}
