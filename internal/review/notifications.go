package review

import (
	"context"
	"errors"
	"sort"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

// Notifications reads a recipient's notification collection and toggles the
// read flag — the only mutable field on a notification.
type Notifications struct {
	store docstore.Store
}

func NewNotifications(store docstore.Store) *Notifications {
	return &Notifications{store: store}
}

// List returns the user's notifications, newest first.
func (n *Notifications) List(ctx context.Context, user string, unreadOnly bool) ([]Notification, error) {
	raw, err := n.store.ListPrefix(ctx, content.NotificationsPrefix(user))
	if err != nil {
		return nil, err
	}
	items := make([]Notification, 0, len(raw))
	for _, entry := range raw {
		var item Notification
		if err := decode(entry.Doc, &item); err != nil {
			return nil, err
		}
		if unreadOnly && item.Read {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// MarkRead flips the read flag. Marking an already-read notification is a
// no-op, not an error.
func (n *Notifications) MarkRead(ctx context.Context, user, eventID string) (Notification, error) {
	path := content.NotificationPath(user, eventID)
	var updated Notification
	err := n.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var item Notification
		if err := tx.Get(ctx, path, &item); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return notFoundError("notification " + eventID + " not found")
			}
			return err
		}
		if item.Read {
			updated = item
			return nil
		}
		item.Read = true
		if err := tx.Put(ctx, path, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return Notification{}, domainErr
		}
		return Notification{}, wrapStorage(err)
	}
	return updated, nil
}
