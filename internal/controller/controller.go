// Package controller exposes the public verb surface, serializes verbs
// per project, and drives the read-verify-transform-persist-reintegrate
// sequence every mutating verb follows. It is the only package that wires
// the adapter, store, verifier, and integration engine together behind a
// lock.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/events"
	"github.com/xycareh/gitbutler/internal/gitadapter"
	"github.com/xycareh/gitbutler/internal/integration"
	"github.com/xycareh/gitbutler/internal/project"
	"github.com/xycareh/gitbutler/internal/store"
	"github.com/xycareh/gitbutler/internal/vbranch"
	"github.com/xycareh/gitbutler/internal/verify"
)

// projectState bundles the lazily-opened adapter and store for one project
// with the mutex that serializes every verb run against it.
type projectState struct {
	mu      sync.Mutex
	project project.Project
	adapter gitadapter.Adapter
	store   *store.Store
}

// Controller holds one mutex-guarded state per project and the event bus
// mutating verbs publish recompute requests onto.
type Controller struct {
	registry *project.Registry
	bus      *events.Bus

	statesMu sync.Mutex
	states   map[uuid.UUID]*projectState
}

// New creates a controller over the given project registry, publishing
// recompute events onto bus.
func New(registry *project.Registry, bus *events.Bus) *Controller {
	c := &Controller{
		registry: registry,
		bus:      bus,
		states:   make(map[uuid.UUID]*projectState),
	}
	bus.SetHandler(c.handleEvent)
	return c
}

// handleEvent reacts to bus-delivered events. CalculateVirtualBranches
// simply re-runs the reintegration path for the project so observers (the
// filesystem watcher, in particular) see a refreshed workspace after an
// external change.
func (c *Controller) handleEvent(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindCalculateVirtualBranches:
		_ = c.Reintegrate(ctx, ev.ProjectID)
	}
}

// projectStateFor returns the per-project state, opening its adapter and
// store on first access.
func (c *Controller) projectStateFor(id uuid.UUID) (*projectState, error) {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()

	if ps, ok := c.states[id]; ok {
		return ps, nil
	}

	p, err := c.registry.Get(id)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	adapter, err := gitadapter.Open(p.Path)
	if err != nil {
		return nil, &GitBackendError{Cause: err}
	}
	ps := &projectState{
		project: p,
		adapter: adapter,
		store:   store.New(p.GBDir()),
	}
	c.states[id] = ps
	return ps, nil
}

// verbContext is the snapshot a single verb's transformation runs over:
// the project's adapter, store, target and branch list as read at the
// start of the verb, after verification has run.
type verbContext struct {
	adapter  gitadapter.Adapter
	store    *store.Store
	target   vbranch.Target
	branches []vbranch.Branch
}

// branch returns the branch with the given id from the loaded snapshot.
func (vc *verbContext) branch(id uuid.UUID) (vbranch.Branch, error) {
	for _, b := range vc.branches {
		if b.ID == id {
			return b, nil
		}
	}
	return vbranch.Branch{}, &BranchNotFoundError{ID: id}
}

// translateVerifyErr maps verify's package-local error values onto the
// controller's exported error kinds.
func translateVerifyErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == verify.ErrDetachedHead:
		return ErrDetachedHead
	case err == verify.ErrNoIntegrationCommit:
		return ErrNoIntegrationCommit
	}
	if ihe, ok := err.(*verify.InvalidHeadError); ok {
		return &InvalidHeadError{Name: string(ihe.Name)}
	}
	return &GitBackendError{Cause: err}
}

func translateStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if err == store.ErrTargetMissing {
		return ErrTargetMissing
	}
	return &PersistenceError{Cause: err}
}

// checkCancelled reports ErrCancelled if ctx has already been cancelled,
// so a cancelled verb gives up at lock acquisition instead of mutating
// state.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// load acquires the project's lock, reads its target and branch snapshot,
// and runs verify/repair. Callers must call release when done, which
// unlocks the project.
func (c *Controller) load(ctx context.Context, projectID uuid.UUID) (*verbContext, func(), error) {
	ps, err := c.projectStateFor(projectID)
	if err != nil {
		return nil, nil, err
	}
	ps.mu.Lock()
	release := func() { ps.mu.Unlock() }

	if err := checkCancelled(ctx); err != nil {
		release()
		return nil, nil, err
	}

	target, err := ps.store.GetDefaultTarget()
	if err != nil {
		release()
		return nil, nil, translateStoreErr(err)
	}

	if _, err := verify.Verify(ps.adapter, ps.store, target); err != nil {
		release()
		return nil, nil, translateVerifyErr(err)
	}

	branches, err := ps.store.ListBranches()
	if err != nil {
		release()
		return nil, nil, translateStoreErr(err)
	}

	vc := &verbContext{adapter: ps.adapter, store: ps.store, target: target, branches: branches}
	return vc, release, nil
}

// reintegrate rebuilds the integration commit and hidden refs against the
// store's current branch list.
func (vc *verbContext) reintegrate() error {
	branches, err := vc.store.ListBranches()
	if err != nil {
		return translateStoreErr(err)
	}
	if _, err := integration.UpdateGitbutlerIntegration(vc.adapter, vc.target, branches, plumbing.ZeroHash); err != nil {
		return translateIntegrationErr(err)
	}
	return nil
}

func translateIntegrationErr(err error) error {
	if wmc, ok := err.(*integration.WorkspaceMergeConflictError); ok {
		id, parseErr := uuid.Parse(wmc.Branch)
		if parseErr != nil {
			return &GitBackendError{Cause: err}
		}
		return &WorkspaceMergeConflictError{Branch: id}
	}
	return &GitBackendError{Cause: err}
}

// mutate runs the full mutating-verb sequence: lock (via load), run fn's
// verb-specific transformation, reintegrate, unlock, and emit a recompute
// event.
func (c *Controller) mutate(ctx context.Context, projectID uuid.UUID, fn func(vc *verbContext) error) error {
	if err := c.mutateNoPublish(ctx, projectID, fn); err != nil {
		return err
	}
	c.bus.Publish(ctx, events.Event{Kind: events.KindCalculateVirtualBranches, ProjectID: projectID})
	return nil
}

// mutateNoPublish runs the mutating-verb sequence without emitting a
// recompute event. Used by Reintegrate, which is itself driven by a
// recompute event: publishing another one there would cascade forever,
// since coalescing only bounds concurrent duplicates, not a
// self-sustaining loop.
func (c *Controller) mutateNoPublish(ctx context.Context, projectID uuid.UUID, fn func(vc *verbContext) error) error {
	vc, release, err := c.load(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()

	if err := fn(vc); err != nil {
		return err
	}
	return vc.reintegrate()
}

// read runs a read-only verb: lock, load snapshot, verify, but skip
// transform/persist/reintegrate.
func (c *Controller) read(ctx context.Context, projectID uuid.UUID, fn func(vc *verbContext) error) error {
	vc, release, err := c.load(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	return fn(vc)
}

// Reintegrate rebuilds a project's integration state outside of any
// specific verb, driven by event delivery (e.g. after an external
// filesystem change). It does not publish its own recompute event: it is
// already a response to one, and doing so would cascade indefinitely.
func (c *Controller) Reintegrate(ctx context.Context, projectID uuid.UUID) error {
	return c.mutateNoPublish(ctx, projectID, func(vc *verbContext) error { return nil })
}
