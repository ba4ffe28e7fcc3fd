package review

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
	"almanac/api/internal/util"
)

// Event is a fan-out trigger. ID must be stable across redeliveries of the
// same underlying event — it keys the per-recipient de-duplication.
type Event struct {
	ID           string
	TargetPath   string
	Type         string
	Message      string
	ExcludeActor string
}

// Mailer delivers an optional email copy of a notification. Implemented by
// the email service; nil disables mail.
type Mailer interface {
	SendNotification(to, userName, message, targetPath string) error
}

// Fanout writes one notification per interested recipient for an event.
// A recipient's notification is keyed by the event id, so invoking fan-out
// twice for one event writes nothing the second time. Per-recipient failures
// never abort delivery to the others.
type Fanout struct {
	store     docstore.Store
	watchlist *WatchlistIndex
	threads   ParticipantSource
	mail      Mailer
	now       func() time.Time
}

func NewFanout(store docstore.Store, watchlist *WatchlistIndex, threads ParticipantSource, mail Mailer) *Fanout {
	return &Fanout{store: store, watchlist: watchlist, threads: threads, mail: mail, now: time.Now}
}

// Fanout computes the recipient set, removes the triggering actor, and
// writes one unread notification per remaining recipient. It returns the
// number of notifications actually written — 0 when every recipient was
// already notified for this event. A non-nil *PartialFanoutFailure lists
// recipients that could not be written; everything else still went through.
func (f *Fanout) Fanout(ctx context.Context, event Event) (int, error) {
	if event.ID == "" {
		return 0, validationError("event id is required")
	}
	recipients, err := f.recipients(ctx, event)
	if err != nil {
		return 0, err
	}

	written := 0
	var failed []RecipientError
	for i, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			// Out of time: report the rest as failed, keep what landed.
			for _, remaining := range recipients[i:] {
				failed = append(failed, RecipientError{Recipient: remaining, Err: err})
			}
			break
		}
		fresh, err := f.notifyOne(ctx, recipient, event)
		if err != nil {
			failed = append(failed, RecipientError{Recipient: recipient, Err: err})
			continue
		}
		if fresh {
			written++
			f.sendMail(ctx, recipient, event)
		}
	}

	if len(failed) > 0 {
		return written, &PartialFanoutFailure{EventID: event.ID, Failed: failed}
	}
	return written, nil
}

func (f *Fanout) recipients(ctx context.Context, event Event) ([]string, error) {
	subscribers, err := f.watchlist.SubscribersOf(ctx, event.TargetPath)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(subscribers))
	for _, user := range subscribers {
		set[user] = struct{}{}
	}
	if f.threads != nil && strings.HasPrefix(event.Type, "discussion") {
		participants, err := f.threads.Participants(ctx, event.TargetPath)
		if err != nil {
			return nil, err
		}
		for _, user := range participants {
			if user != "" {
				set[user] = struct{}{}
			}
		}
	}
	delete(set, event.ExcludeActor)

	recipients := make([]string, 0, len(set))
	for user := range set {
		recipients = append(recipients, user)
	}
	sort.Strings(recipients)
	return recipients, nil
}

// notifyOne writes the recipient's notification unless one already exists
// for this event. The read-then-put runs in one transaction so concurrent
// fan-outs of the same event cannot double-write.
func (f *Fanout) notifyOne(ctx context.Context, recipient string, event Event) (bool, error) {
	path := content.NotificationPath(recipient, event.ID)
	fresh := false
	err := f.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		fresh = false
		err := tx.Get(ctx, path, nil)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		fresh = true
		return tx.Put(ctx, path, Notification{
			ID:         util.NewID("ntf"),
			EventID:    event.ID,
			Type:       event.Type,
			TargetPath: event.TargetPath,
			Message:    event.Message,
			CreatedAt:  f.now().UTC(),
			Read:       false,
		})
	})
	if err != nil {
		return false, wrapStorage(err)
	}
	return fresh, nil
}

// sendMail delivers an email copy when a mailer is configured and the
// recipient has a profile address. Mail is informational; failures are
// logged and dropped.
func (f *Fanout) sendMail(ctx context.Context, recipient string, event Event) {
	if f.mail == nil {
		return
	}
	var profile Profile
	if err := f.store.Get(ctx, content.ProfilePath(recipient), &profile); err != nil || profile.Email == "" {
		return
	}
	name := profile.DisplayName
	if name == "" {
		name = recipient
	}
	if err := f.mail.SendNotification(profile.Email, name, event.Message, event.TargetPath); err != nil {
		log.Printf("fanout: mail to %s: %v", recipient, err)
	}
}
