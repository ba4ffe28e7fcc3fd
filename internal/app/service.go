package app

import (
	"context"
	"errors"
	"log"
	"time"

	"almanac/api/internal/config"
	"almanac/api/internal/docstore"
	"almanac/api/internal/review"
	"almanac/api/internal/search"
)

// Service wires the review pipeline behind the HTTP surface. Actor identity
// is supplied by the caller and trusted as given.
type Service struct {
	cfg           config.Config
	store         docstore.Store
	proposals     *review.ProposalStore
	audit         *review.AuditLog
	watchlist     *review.WatchlistIndex
	notifications *review.Notifications
	dispatch      review.Dispatcher
	search        *search.Service
}

func New(
	cfg config.Config,
	store docstore.Store,
	proposals *review.ProposalStore,
	audit *review.AuditLog,
	watchlist *review.WatchlistIndex,
	notifications *review.Notifications,
	dispatch review.Dispatcher,
	searchService *search.Service,
) *Service {
	return &Service{
		cfg:           cfg,
		store:         store,
		proposals:     proposals,
		audit:         audit,
		watchlist:     watchlist,
		notifications: notifications,
		dispatch:      dispatch,
		search:        searchService,
	}
}

func (s *Service) SubmitProposal(ctx context.Context, actor string, input review.SubmitInput) (review.Proposal, error) {
	proposal, err := s.proposals.Submit(ctx, actor, input)
	if err != nil {
		return review.Proposal{}, err
	}
	s.indexProposal(proposal)
	return proposal, nil
}

// ResolveProposal transitions the proposal and dispatches notification
// fan-out. The returned *PartialFanoutFailure is informational: the
// resolution itself committed, some watchers were not notified.
func (s *Service) ResolveProposal(ctx context.Context, actor, proposalID, decision string) (review.Proposal, *review.PartialFanoutFailure, error) {
	resolution, err := s.proposals.Resolve(ctx, proposalID, decision, actor, time.Now())
	if err != nil {
		return review.Proposal{}, nil, err
	}
	s.indexProposal(resolution.Proposal)
	s.indexActivity(resolution.Audit)

	dispatchErr := s.dispatch.Dispatch(ctx, resolution.Event)
	var partial *review.PartialFanoutFailure
	if dispatchErr != nil {
		if !errors.As(dispatchErr, &partial) {
			// Resolution correctness outranks delivery; the outbox keeps
			// the event for inspection or the worker.
			log.Printf("app: dispatch event %s: %v", resolution.Event.ID, dispatchErr)
		}
	}
	return resolution.Proposal, partial, nil
}

func (s *Service) Proposal(ctx context.Context, proposalID string) (review.Proposal, error) {
	return s.proposals.Get(ctx, proposalID)
}

func (s *Service) Proposals(ctx context.Context, status string) ([]review.Proposal, error) {
	return s.proposals.List(ctx, status)
}

func (s *Service) Watch(ctx context.Context, user, targetPath string) error {
	return s.watchlist.Watch(ctx, user, targetPath)
}

func (s *Service) Unwatch(ctx context.Context, user, targetPath string) error {
	return s.watchlist.Unwatch(ctx, user, targetPath)
}

func (s *Service) Watchlist(ctx context.Context, user string) ([]review.WatchItem, error) {
	return s.watchlist.Watching(ctx, user)
}

func (s *Service) Notifications(ctx context.Context, user string, unreadOnly bool) ([]review.Notification, error) {
	return s.notifications.List(ctx, user, unreadOnly)
}

func (s *Service) MarkNotificationRead(ctx context.Context, user, eventID string) (review.Notification, error) {
	return s.notifications.MarkRead(ctx, user, eventID)
}

func (s *Service) Activity(ctx context.Context, limit int) ([]review.ActivityEntry, error) {
	return s.audit.List(ctx, limit)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) indexProposal(p review.Proposal) {
	s.search.IndexProposal(search.ProposalRecord{
		ID:         p.ID,
		TargetPath: p.TargetPath,
		ChangeType: p.ChangeType,
		Reason:     p.Reason,
		Status:     p.Status,
		CreatedBy:  p.CreatedBy,
	})
}

func (s *Service) indexActivity(entry review.ActivityEntry) {
	s.search.IndexActivity(search.ActivityRecord{
		ID:          entry.ID,
		Actor:       entry.Actor,
		Action:      entry.Action,
		TargetPath:  entry.TargetPath,
		DiffSummary: entry.DiffSummary,
	})
}
