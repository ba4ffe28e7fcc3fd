package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

func newFanoutFixture(t *testing.T) (*Fanout, *docstore.MemoryStore, *WatchlistIndex) {
	t.Helper()
	store := docstore.NewMemoryStore()
	watchlist := NewWatchlistIndex(store, MatchSubtree)
	return NewFanout(store, watchlist, NewThreadParticipants(store), nil), store, watchlist
}

func approvalEvent(id, targetPath, actor string) Event {
	return Event{
		ID:           id,
		TargetPath:   targetPath,
		Type:         "proposal_approved",
		Message:      "Proposal prop_1 was approved by " + actor,
		ExcludeActor: actor,
	}
}

func TestFanoutNotifiesWatchersExcludingActor(t *testing.T) {
	ctx := context.Background()
	fanout, store, watchlist := newFanoutFixture(t)

	mustWatch(t, watchlist, "alice", "/subjects/math")
	mustWatch(t, watchlist, "bob", "/subjects/math/types/worksheet")
	mustWatch(t, watchlist, "carol", "/subjects/chemistry")

	written, err := fanout.Fanout(ctx, approvalEvent("evt_1", "/subjects/math/types/worksheet", "bob"))
	if err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}

	var note Notification
	if err := store.Get(ctx, content.NotificationPath("alice", "evt_1"), &note); err != nil {
		t.Fatalf("alice notification: %v", err)
	}
	if note.Read || note.EventID != "evt_1" || note.Type != "proposal_approved" {
		t.Errorf("notification: %+v", note)
	}

	// The acting user and the unrelated watcher get nothing.
	for _, user := range []string{"bob", "carol"} {
		if err := store.Get(ctx, content.NotificationPath(user, "evt_1"), nil); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("%s notification: got %v, want ErrNotFound", user, err)
		}
	}
}

func TestFanoutIsIdempotentPerEvent(t *testing.T) {
	ctx := context.Background()
	fanout, store, watchlist := newFanoutFixture(t)
	mustWatch(t, watchlist, "alice", "/subjects/math")
	mustWatch(t, watchlist, "bob", "/subjects/math")

	event := approvalEvent("evt_1", "/subjects/math", "carol")
	if written, err := fanout.Fanout(ctx, event); err != nil || written != 2 {
		t.Fatalf("first fanout: %d, %v", written, err)
	}

	// Mark one as read, then redeliver. Nothing is re-written and the read
	// flag survives.
	if _, err := NewNotifications(store).MarkRead(ctx, "alice", "evt_1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if written, err := fanout.Fanout(ctx, event); err != nil || written != 0 {
		t.Fatalf("redelivered fanout: %d, %v", written, err)
	}

	var note Notification
	if err := store.Get(ctx, content.NotificationPath("alice", "evt_1"), &note); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !note.Read {
		t.Error("redelivery reset the read flag")
	}

	// A different event to the same recipients writes again.
	if written, err := fanout.Fanout(ctx, approvalEvent("evt_2", "/subjects/math", "carol")); err != nil || written != 2 {
		t.Fatalf("second event fanout: %d, %v", written, err)
	}
}

func TestFanoutRequiresEventID(t *testing.T) {
	fanout, _, _ := newFanoutFixture(t)
	_, err := fanout.Fanout(context.Background(), Event{TargetPath: "/subjects/math"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("got %v, want VALIDATION_ERROR", err)
	}
}

func TestFanoutIncludesThreadParticipantsForDiscussions(t *testing.T) {
	ctx := context.Background()
	fanout, store, watchlist := newFanoutFixture(t)
	mustWatch(t, watchlist, "alice", "/subjects/math")
	thread := Thread{ID: "thr_1", TargetPath: "/subjects/math", Participants: []string{"bob", "carol"}}
	if err := store.Put(ctx, content.ThreadPath(thread.ID), thread); err != nil {
		t.Fatalf("put thread: %v", err)
	}

	event := Event{
		ID:           "evt_1",
		TargetPath:   "/subjects/math",
		Type:         "discussion_reply",
		Message:      "new reply",
		ExcludeActor: "carol",
	}
	written, err := fanout.Fanout(ctx, event)
	if err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want alice and bob", written)
	}
	if err := store.Get(ctx, content.NotificationPath("bob", "evt_1"), nil); err != nil {
		t.Errorf("bob notification: %v", err)
	}

	// Participants are only pulled in for discussion events.
	written, err = fanout.Fanout(ctx, approvalEvent("evt_2", "/subjects/math", "carol"))
	if err != nil {
		t.Fatalf("approval fanout: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want alice only", written)
	}
}

// failingStore rejects transactional writes for one user's documents,
// simulating a recipient whose notification cannot be stored.
type failingStore struct {
	*docstore.MemoryStore
	failUser string
}

func (s *failingStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	return s.MemoryStore.RunTransaction(ctx, func(tx docstore.Tx) error {
		return fn(&failingTx{Tx: tx, failUser: s.failUser})
	})
}

type failingTx struct {
	docstore.Tx
	failUser string
}

func (t *failingTx) Put(ctx context.Context, path string, doc any) error {
	if strings.Contains(path, "/users/"+t.failUser+"/") {
		return fmt.Errorf("write rejected for %s", t.failUser)
	}
	return t.Tx.Put(ctx, path, doc)
}

func TestFanoutPartialFailureKeepsDelivering(t *testing.T) {
	ctx := context.Background()
	base := docstore.NewMemoryStore()
	store := &failingStore{MemoryStore: base, failUser: "bob"}
	watchlist := NewWatchlistIndex(store, MatchSubtree)
	fanout := NewFanout(store, watchlist, nil, nil)

	mustWatch(t, watchlist, "alice", "/subjects/math")
	mustWatch(t, watchlist, "bob", "/subjects/math")
	mustWatch(t, watchlist, "dave", "/subjects/math")

	written, err := fanout.Fanout(ctx, approvalEvent("evt_1", "/subjects/math", "zed"))
	var partial *PartialFanoutFailure
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialFanoutFailure", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want alice and dave", written)
	}
	if len(partial.Failed) != 1 || partial.Failed[0].Recipient != "bob" {
		t.Fatalf("failed = %+v", partial.Failed)
	}
	if got := partial.FailedRecipients(); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("FailedRecipients() = %v", got)
	}

	// The successful recipients actually got their notifications.
	for _, user := range []string{"alice", "dave"} {
		if err := base.Get(ctx, content.NotificationPath(user, "evt_1"), nil); err != nil {
			t.Errorf("%s notification: %v", user, err)
		}
	}
}

func TestFanoutCancelledContextReportsRemaining(t *testing.T) {
	fanout, _, watchlist := newFanoutFixture(t)
	mustWatch(t, watchlist, "alice", "/subjects/math")
	mustWatch(t, watchlist, "bob", "/subjects/math")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := fanout.Fanout(ctx, approvalEvent("evt_1", "/subjects/math", "zed"))
	var partial *PartialFanoutFailure
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want PartialFanoutFailure", err)
	}
	if written != 0 || len(partial.Failed) != 2 {
		t.Fatalf("written = %d, failed = %d", written, len(partial.Failed))
	}
}
