package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

func seedNotification(t *testing.T, store docstore.Store, user, eventID string, createdAt time.Time, read bool) {
	t.Helper()
	note := Notification{
		ID:         "ntf_" + eventID,
		EventID:    eventID,
		Type:       "proposal_approved",
		TargetPath: "/subjects/math",
		Message:    "approved",
		CreatedAt:  createdAt,
		Read:       read,
	}
	if err := store.Put(context.Background(), content.NotificationPath(user, eventID), note); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
}

func TestNotificationsListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	notifications := NewNotifications(store)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedNotification(t, store, "alice", "evt_old", base, true)
	seedNotification(t, store, "alice", "evt_new", base.Add(time.Hour), false)
	seedNotification(t, store, "bob", "evt_other", base, false)

	all, err := notifications.List(ctx, "alice", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].EventID != "evt_new" || all[1].EventID != "evt_old" {
		t.Fatalf("list = %+v", all)
	}

	unread, err := notifications.List(ctx, "alice", true)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].EventID != "evt_new" {
		t.Fatalf("unread = %+v", unread)
	}
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	notifications := NewNotifications(store)
	seedNotification(t, store, "alice", "evt_1", time.Now().UTC(), false)

	got, err := notifications.MarkRead(ctx, "alice", "evt_1")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !got.Read {
		t.Fatal("notification not marked read")
	}

	// Marking again is a no-op.
	again, err := notifications.MarkRead(ctx, "alice", "evt_1")
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if !again.Read {
		t.Fatal("read flag lost")
	}

	_, err = notifications.MarkRead(ctx, "alice", "evt_missing")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("missing: got %v, want NOT_FOUND", err)
	}

	// Another user's notification is out of reach.
	_, err = notifications.MarkRead(ctx, "bob", "evt_1")
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("cross-user: got %v, want NOT_FOUND", err)
	}
}
