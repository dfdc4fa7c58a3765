// Package watcher bridges filesystem change notifications to the event
// bus: a fsnotify.Watcher wrapped with a start/stop lifecycle and a
// goroutine translating raw events into the engine's own event vocabulary,
// covering a project worktree's .git directory and working tree.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/xycareh/gitbutler/internal/events"
)

// ProjectWatcher watches one project's .git directory and working tree,
// publishing GitFileChange / ProjectFileChange events onto the bus as the
// filesystem changes underneath the engine; git-internal changes also feed
// KindCalculateVirtualBranches.
type ProjectWatcher struct {
	projectID uuid.UUID
	path      string
	gitDir    string
	bus       *events.Bus

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a watcher for projectID rooted at path, with its git
// directory at gitDir (so HEAD/ref changes can be told apart from working
// tree edits).
func New(projectID uuid.UUID, path, gitDir string, bus *events.Bus) (*ProjectWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	return &ProjectWatcher{
		projectID: projectID,
		path:      path,
		gitDir:    gitDir,
		bus:       bus,
		fsw:       fsw,
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the project's worktree root and git directory.
// It fails if called twice.
func (w *ProjectWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher: already running for project %s", w.projectID)
	}

	if err := w.fsw.Add(w.path); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.path, err)
	}
	if err := w.fsw.Add(w.gitDir); err != nil {
		w.fsw.Remove(w.path)
		return fmt.Errorf("watcher: watch %s: %w", w.gitDir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *ProjectWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("watcher: close: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *ProjectWatcher) processEvents() {
	defer w.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.publish(ctx, ev)

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors have no recovery path here; the project simply
			// stops receiving filesystem-driven recompute events until the
			// caller restarts the watcher.
		}
	}
}

// publish classifies a raw fsnotify event as a git-internal change (a ref
// or HEAD move under gitDir) or a working-tree file change, and emits the
// matching internal-only event kind.
func (w *ProjectWatcher) publish(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	kind := events.KindProjectFileChange
	if strings.HasPrefix(ev.Name, w.gitDir+string(filepath.Separator)) || ev.Name == w.gitDir {
		kind = events.KindGitFileChange
	}

	w.bus.Publish(ctx, events.Event{
		Kind:      kind,
		ProjectID: w.projectID,
		Path:      ev.Name,
	})

	// A git-internal change (ref update, index write) means another tool
	// may have moved state out from under the workspace; recompute.
	if kind == events.KindGitFileChange {
		w.bus.Publish(ctx, events.Event{Kind: events.KindCalculateVirtualBranches, ProjectID: w.projectID})
	}
}
