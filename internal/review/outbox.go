package review

import (
	"context"
	"errors"
	"sort"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

// Outbox manages the durable resolution events co-committed by
// ProposalStore.Resolve. Records stay pending until a dispatcher finishes
// fan-out for them, which is what turns "committed mutation" into "eventual
// event delivery".
type Outbox struct {
	store docstore.Store
	now   func() time.Time
}

func NewOutbox(store docstore.Store) *Outbox {
	return &Outbox{store: store, now: time.Now}
}

// Due returns pending events whose next attempt time has passed, oldest
// first.
func (o *Outbox) Due(ctx context.Context) ([]ResolutionEvent, error) {
	raw, err := o.store.ListPrefix(ctx, content.OutboxPrefix)
	if err != nil {
		return nil, err
	}
	now := o.now()
	events := make([]ResolutionEvent, 0, len(raw))
	for _, entry := range raw {
		var event ResolutionEvent
		if err := decode(entry.Doc, &event); err != nil {
			return nil, err
		}
		if event.Status != EventPending || event.NextAttemptAt.After(now) {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	return events, nil
}

// Claim bumps the attempt counter and schedules the next retry window
// before the caller runs fan-out, so a crash mid-dispatch redelivers later
// instead of spinning. Returns false if the event is no longer pending.
func (o *Outbox) Claim(ctx context.Context, eventID string, backoff time.Duration) (ResolutionEvent, bool, error) {
	var claimed ResolutionEvent
	ok := false
	err := o.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		ok = false
		var event ResolutionEvent
		if err := tx.Get(ctx, content.OutboxPath(eventID), &event); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		}
		if event.Status != EventPending {
			return nil
		}
		event.Attempts++
		event.NextAttemptAt = o.now().Add(backoff)
		if err := tx.Put(ctx, content.OutboxPath(eventID), event); err != nil {
			return err
		}
		claimed = event
		ok = true
		return nil
	})
	if err != nil {
		return ResolutionEvent{}, false, err
	}
	return claimed, ok, nil
}

func (o *Outbox) MarkDone(ctx context.Context, eventID string) error {
	return o.setStatus(ctx, eventID, EventDone, "")
}

func (o *Outbox) MarkFailed(ctx context.Context, eventID, reason string) error {
	return o.setStatus(ctx, eventID, EventFailed, reason)
}

func (o *Outbox) setStatus(ctx context.Context, eventID, status, reason string) error {
	return o.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var event ResolutionEvent
		if err := tx.Get(ctx, content.OutboxPath(eventID), &event); err != nil {
			return err
		}
		event.Status = status
		event.LastError = reason
		return tx.Put(ctx, content.OutboxPath(eventID), event)
	})
}

// FanoutEvent converts an outbox record into the fan-out trigger. The event
// id carries over unchanged so redelivered records de-duplicate.
func FanoutEvent(event ResolutionEvent) Event {
	message := "Proposal " + event.ProposalID + " was " + pastTense(event.Decision) + " by " + event.Actor
	return Event{
		ID:           event.ID,
		TargetPath:   event.TargetPath,
		Type:         "proposal_" + pastTense(event.Decision),
		Message:      message,
		ExcludeActor: event.Actor,
	}
}

func pastTense(decision string) string {
	switch decision {
	case DecisionApprove:
		return StatusApproved
	case DecisionReject:
		return StatusRejected
	default:
		return decision
	}
}
