// Package events provides a bounded event mailbox, shared by all projects
// and coalescing recompute requests per project, decoupling
// mutation completion (driven by the controller) from recomputation
// requests (driven by the filesystem watcher or other external
// collaborators). Delivery is best-effort at-least-once; because recompute
// is a pure function of persisted state, duplicate or coalesced deliveries
// are always safe.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies the shape of event on the bus.
type Kind string

const (
	// KindCalculateVirtualBranches requests a recompute of a project's
	// workspace/integration state.
	KindCalculateVirtualBranches Kind = "calculate_virtual_branches"
	// KindFetchGitbutlerData requests a pull of a project's remote data.
	KindFetchGitbutlerData Kind = "fetch_gitbutler_data"
	// KindPushGitbutlerData requests a push of a project's local data.
	KindPushGitbutlerData Kind = "push_gitbutler_data"
	// KindFlush is an observer checkpoint tied to a session.
	KindFlush Kind = "flush"
	// KindGitFileChange is produced internally by the filesystem watcher
	// when a file under .git changes.
	KindGitFileChange Kind = "git_file_change"
	// KindProjectFileChange is produced internally by the filesystem
	// watcher when a tracked working-copy file changes.
	KindProjectFileChange Kind = "project_file_change"
)

// Event is one message on the bus.
type Event struct {
	Kind      Kind
	ProjectID uuid.UUID
	Session   string // set for KindFlush
	Path      string // set for KindGitFileChange / KindProjectFileChange
}

// Handler processes an event. The controller registers one of these to
// react to CalculateVirtualBranches (and friends) by re-running its
// verb-level recompute.
type Handler func(context.Context, Event)

// Bus is a bounded async mailbox with per-project coalescing of pending
// CalculateVirtualBranches requests: a recompute request whose twin is
// still queued undelivered is dropped at Publish time. Coalescing is sound
// because recompute is a pure function of persisted state — the queued
// request already covers everything a later duplicate would. A request
// whose delivery has begun no longer coalesces: its handler may have read
// state before the duplicate's cause was persisted, so the duplicate must
// queue again.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	handler Handler

	pendingMu sync.Mutex
	pending   map[uuid.UUID]int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bus with the given buffer capacity and starts its
// dispatcher goroutine.
func New(capacity int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		ch:      make(chan Event, capacity),
		pending: make(map[uuid.UUID]int),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// SetHandler installs the function invoked for every delivered event.
// Intended to be called once, before any events are published.
func (b *Bus) SetHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Publish enqueues an event for delivery. It blocks if the bus is at
// capacity, until the caller's context or the bus itself is cancelled. A
// CalculateVirtualBranches event is dropped when one for the same project
// is still queued.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Kind == KindCalculateVirtualBranches {
		b.pendingMu.Lock()
		if b.pending[ev.ProjectID] > 0 {
			b.pendingMu.Unlock()
			return
		}
		b.pending[ev.ProjectID]++
		b.pendingMu.Unlock()
	}

	select {
	case b.ch <- ev:
	case <-ctx.Done():
		b.unmarkPending(ev)
	case <-b.ctx.Done():
		b.unmarkPending(ev)
	}
}

// unmarkPending releases an event's pending slot, either because it was
// never enqueued or because the dispatcher took it off the queue.
func (b *Bus) unmarkPending(ev Event) {
	if ev.Kind != KindCalculateVirtualBranches {
		return
	}
	b.pendingMu.Lock()
	if b.pending[ev.ProjectID] > 0 {
		b.pending[ev.ProjectID]--
	}
	b.pendingMu.Unlock()
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.ch:
			if !ok {
				return
			}
			b.unmarkPending(ev)
			b.deliver(ev)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return
	}
	h(b.ctx, ev)
}

// Close stops the dispatcher goroutine and waits for it to exit.
func (b *Bus) Close() {
	b.cancel()
	<-b.done
}
