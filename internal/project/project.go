// Package project holds the minimal project value type and the in-process
// registry the controller looks projects up by id through. The persisted
// project registry itself is an external collaborator; this package only
// models the shape the engine consumes from it.
package project

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Project identifies a git worktree the engine manages a workspace for.
type Project struct {
	ID   uuid.UUID
	Path string
}

// GBDir returns the project's gitbutler state directory,
// <worktree>/.git/gitbutler.
func (p Project) GBDir() string {
	return filepath.Join(p.Path, ".git", "gitbutler")
}

// GitDir returns the project's .git directory, where the integration
// sidecar lives.
func (p Project) GitDir() string {
	return filepath.Join(p.Path, ".git")
}

// Registry is an in-process map from project id to Project, standing in
// for the persisted project registry the desktop app owns.
type Registry struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]Project
}

// NewRegistry creates an empty project registry.
func NewRegistry() *Registry {
	return &Registry{projects: make(map[uuid.UUID]Project)}
}

// Add registers a project, replacing any existing entry with the same id.
func (r *Registry) Add(p Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
}

// Get looks up a project by id.
func (r *Registry) Get(id uuid.UUID) (Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project: %s not found", id)
	}
	return p, nil
}

// Remove drops a project from the registry.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
}
