package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBusDeliversPublishedEvents(t *testing.T) {
	bus := New(4)
	t.Cleanup(bus.Close)

	received := make(chan Event, 4)
	bus.SetHandler(func(_ context.Context, ev Event) {
		received <- ev
	})

	projectID := uuid.New()
	bus.Publish(context.Background(), Event{Kind: KindCalculateVirtualBranches, ProjectID: projectID})

	select {
	case ev := <-received:
		assert.Equal(t, KindCalculateVirtualBranches, ev.Kind)
		assert.Equal(t, projectID, ev.ProjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusDropsEventWhenHandlerUnset(t *testing.T) {
	bus := New(1)
	t.Cleanup(bus.Close)

	// No handler installed; delivery must be a no-op, not a panic or hang.
	bus.Publish(context.Background(), Event{Kind: KindFlush, ProjectID: uuid.New(), Session: "s1"})
}

func TestBusCoalescesPendingRecomputeRequests(t *testing.T) {
	bus := New(4)
	t.Cleanup(bus.Close)

	projectID := uuid.New()
	delivered := make(chan Event, 4)
	release := make(chan struct{})
	bus.SetHandler(func(_ context.Context, ev Event) {
		delivered <- ev
		<-release
	})

	ctx := context.Background()
	recompute := Event{Kind: KindCalculateVirtualBranches, ProjectID: projectID}

	// The first request is taken by the dispatcher and blocks in the
	// handler; an in-flight request no longer covers later publishes.
	bus.Publish(ctx, recompute)
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("first recompute was not delivered")
	}

	// The second request queues; the third finds it still pending and is
	// coalesced onto it.
	bus.Publish(ctx, recompute)
	bus.Publish(ctx, recompute)
	close(release)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("queued recompute was not delivered")
	}
	select {
	case ev := <-delivered:
		t.Fatalf("coalesced duplicate was delivered: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBusPublishRespectsCallerCancellation(t *testing.T) {
	bus := New(1)
	t.Cleanup(bus.Close)

	// Fill the buffer with no handler draining it, then publish once more
	// with a cancelled caller context: Publish must return instead of
	// blocking on the full mailbox.
	blocked := make(chan struct{})
	bus.SetHandler(func(_ context.Context, _ Event) { <-blocked })
	defer close(blocked)

	ctx := context.Background()
	bus.Publish(ctx, Event{Kind: KindFlush, ProjectID: uuid.New()})
	bus.Publish(ctx, Event{Kind: KindFlush, ProjectID: uuid.New()})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		bus.Publish(cancelled, Event{Kind: KindFlush, ProjectID: uuid.New()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not return after caller cancellation")
	}
}
