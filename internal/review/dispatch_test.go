package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

func resolveWithWatcher(t *testing.T, store docstore.Store) (Resolution, *Fanout, *Outbox) {
	t.Helper()
	ctx := context.Background()

	watchlist := NewWatchlistIndex(store, MatchSubtree)
	mustWatch(t, watchlist, "watcher", "/subjects/math")

	proposals := NewProposalStore(store, NewAuditLog(store))
	proposal, err := proposals.Submit(ctx, "author", SubmitInput{
		TargetPath: "/subjects/math",
		ChangeType: "modify",
		Reason:     "fix",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	resolution, err := proposals.Resolve(ctx, proposal.ID, DecisionApprove, "reviewer", time.Now())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return resolution, NewFanout(store, watchlist, nil, nil), NewOutbox(store)
}

func eventStatus(t *testing.T, store docstore.Store, eventID string) ResolutionEvent {
	t.Helper()
	var event ResolutionEvent
	if err := store.Get(context.Background(), content.OutboxPath(eventID), &event); err != nil {
		t.Fatalf("get event %s: %v", eventID, err)
	}
	return event
}

func TestClientDispatcherDeliversAndMarksDone(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	dispatcher := NewClientDispatcher(fanout, outbox, time.Second)
	if err := dispatcher.Dispatch(ctx, resolution.Event); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := store.Get(ctx, content.NotificationPath("watcher", resolution.Event.ID), nil); err != nil {
		t.Fatalf("watcher notification: %v", err)
	}
	if got := eventStatus(t, store, resolution.Event.ID); got.Status != EventDone {
		t.Fatalf("event status = %q, want done", got.Status)
	}
}

func TestClientDispatcherSurfacesPartialFailure(t *testing.T) {
	ctx := context.Background()
	base := docstore.NewMemoryStore()
	store := &failingStore{MemoryStore: base, failUser: "watcher"}
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	dispatcher := NewClientDispatcher(fanout, outbox, time.Second)
	err := dispatcher.Dispatch(ctx, resolution.Event)
	var partial *PartialFanoutFailure
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialFanoutFailure", err)
	}
	if got := eventStatus(t, base, resolution.Event.ID); got.Status != EventFailed || got.LastError == "" {
		t.Fatalf("event after partial failure: %+v", got)
	}
}

func TestServerDispatcherLeavesEventPending(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	resolution, _, _ := resolveWithWatcher(t, store)

	dispatcher := NewServerDispatcher(nil)
	if err := dispatcher.Dispatch(ctx, resolution.Event); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := eventStatus(t, store, resolution.Event.ID); got.Status != EventPending {
		t.Fatalf("event status = %q, want pending", got.Status)
	}
}

func TestWorkerDrainsOutbox(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	worker := NewWorker(outbox, fanout, nil, WorkerConfig{})
	worker.Drain(ctx)

	if err := store.Get(ctx, content.NotificationPath("watcher", resolution.Event.ID), nil); err != nil {
		t.Fatalf("watcher notification: %v", err)
	}
	got := eventStatus(t, store, resolution.Event.ID)
	if got.Status != EventDone {
		t.Fatalf("event status = %q, want done", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}

	// A second drain finds nothing due and changes nothing.
	worker.Drain(ctx)
	if again := eventStatus(t, store, resolution.Event.ID); again.Attempts != 1 {
		t.Fatalf("attempts after redrain = %d", again.Attempts)
	}
}

func TestWorkerSchedulesRetryOnFailure(t *testing.T) {
	ctx := context.Background()
	base := docstore.NewMemoryStore()
	store := &failingStore{MemoryStore: base, failUser: "watcher"}
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	worker := NewWorker(outbox, fanout, nil, WorkerConfig{BaseBackoff: time.Minute})
	worker.Drain(ctx)

	got := eventStatus(t, base, resolution.Event.ID)
	if got.Status != EventPending {
		t.Fatalf("event status = %q, want pending for retry", got.Status)
	}
	if got.Attempts != 1 || !got.NextAttemptAt.After(time.Now().Add(30*time.Second)) {
		t.Fatalf("retry window: %+v", got)
	}

	// Still backing off, so a second drain must skip it.
	worker.Drain(ctx)
	if again := eventStatus(t, base, resolution.Event.ID); again.Attempts != 1 {
		t.Fatalf("attempts during backoff = %d, want 1", again.Attempts)
	}
}

func TestWorkerMarksFailedAtAttemptCeiling(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	// Simulate an event that already burned through its attempts.
	event := eventStatus(t, store, resolution.Event.ID)
	event.Attempts = 2
	if err := store.Put(ctx, content.OutboxPath(event.ID), event); err != nil {
		t.Fatalf("put: %v", err)
	}

	worker := NewWorker(outbox, fanout, nil, WorkerConfig{MaxAttempts: 2})
	worker.Drain(ctx)

	got := eventStatus(t, store, resolution.Event.ID)
	if got.Status != EventFailed {
		t.Fatalf("event status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Error("expected a failure reason")
	}
}

func TestOutboxClaimSkipsNonPending(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	resolution, _, outbox := resolveWithWatcher(t, store)

	if err := outbox.MarkDone(ctx, resolution.Event.ID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	_, ok, err := outbox.Claim(ctx, resolution.Event.ID, time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok {
		t.Fatal("claimed a done event")
	}

	if _, ok, err := outbox.Claim(ctx, "evt_missing", time.Second); err != nil || ok {
		t.Fatalf("claim missing: %v, %v", ok, err)
	}
}

func TestWorkerWakeChannelTriggersDrain(t *testing.T) {
	store := docstore.NewMemoryStore()
	resolution, fanout, outbox := resolveWithWatcher(t, store)

	wake := make(chan struct{}, 1)
	worker := NewWorker(outbox, fanout, wake, WorkerConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	// Run drains once at startup; wait for the event to be processed.
	deadline := time.After(2 * time.Second)
	for {
		event := eventStatus(t, store, resolution.Event.ID)
		if event.Status == EventDone {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never drained the outbox")
		case <-time.After(10 * time.Millisecond):
		}
	}

	wake <- struct{}{}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}

func TestFanoutEventMessage(t *testing.T) {
	event := ResolutionEvent{
		ID:         "evt_1",
		ProposalID: "prop_1",
		TargetPath: "/subjects/math",
		Decision:   DecisionReject,
		Actor:      "reviewer",
	}
	got := FanoutEvent(event)
	if got.ID != "evt_1" || got.ExcludeActor != "reviewer" {
		t.Fatalf("event: %+v", got)
	}
	if got.Type != "proposal_rejected" {
		t.Errorf("type = %q", got.Type)
	}
	if got.Message != "Proposal prop_1 was rejected by reviewer" {
		t.Errorf("message = %q", got.Message)
	}
}
