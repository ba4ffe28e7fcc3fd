package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
	"almanac/api/internal/util"
)

type SubmitInput struct {
	TargetPath string          `json:"targetPath"`
	ChangeType string          `json:"changeType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason"`
}

// Resolution is everything a committed resolve produced: the terminal
// proposal, the audit row, and the outbox event, all written in one
// transaction.
type Resolution struct {
	Proposal Proposal
	Audit    ActivityEntry
	Event    ResolutionEvent
}

// ProposalStore owns the proposal lifecycle: pending on submit, then exactly
// one transition to approved or rejected. Resolved proposals are retained
// forever for audit.
type ProposalStore struct {
	store docstore.Store
	audit *AuditLog
	now   func() time.Time
}

func NewProposalStore(store docstore.Store, audit *AuditLog) *ProposalStore {
	return &ProposalStore{store: store, audit: audit, now: time.Now}
}

// Submit validates the input and creates a pending proposal together with
// its create audit row.
func (p *ProposalStore) Submit(ctx context.Context, actor string, input SubmitInput) (Proposal, error) {
	if strings.TrimSpace(actor) == "" {
		return Proposal{}, validationError("actor is required")
	}
	target, err := content.ParseAddress(input.TargetPath)
	if err != nil {
		return Proposal{}, validationError(err.Error())
	}
	changeType := strings.TrimSpace(input.ChangeType)
	if _, ok := allowedChangeTypes[changeType]; !ok {
		return Proposal{}, validationError("changeType must be one of modify, add, delete, flag_error")
	}

	proposal := Proposal{
		ID:         util.NewID("prop"),
		TargetPath: target.String(),
		ChangeType: changeType,
		Payload:    input.Payload,
		Reason:     strings.TrimSpace(input.Reason),
		Status:     StatusPending,
		CreatedBy:  actor,
		CreatedAt:  p.now().UTC(),
	}

	err = p.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		if err := tx.Put(ctx, content.ProposalPath(proposal.ID), proposal); err != nil {
			return err
		}
		_, err := p.audit.recordTx(ctx, tx, actor, ActionCreate, proposal.TargetPath, "proposal "+proposal.ID+" submitted ("+changeType+")", "")
		return err
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("submit proposal: %w", wrapStorage(err))
	}
	return proposal, nil
}

// Resolve transitions a pending proposal to its terminal status. The status
// read, the mutation, the audit row, and the outbox event are one
// transaction: a second resolver observes the committed terminal status and
// gets a conflict, never a silent no-op.
func (p *ProposalStore) Resolve(ctx context.Context, proposalID, decision, actor string, at time.Time) (Resolution, error) {
	var status, action string
	switch decision {
	case DecisionApprove:
		status, action = StatusApproved, ActionApprove
	case DecisionReject:
		status, action = StatusRejected, ActionReject
	default:
		return Resolution{}, validationError("decision must be approve or reject")
	}
	if strings.TrimSpace(actor) == "" {
		return Resolution{}, validationError("actor is required")
	}
	if at.IsZero() {
		at = p.now()
	}
	at = at.UTC()

	var result Resolution
	err := p.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		var proposal Proposal
		if err := tx.Get(ctx, content.ProposalPath(proposalID), &proposal); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return notFoundError("proposal " + proposalID + " not found")
			}
			return err
		}
		if proposal.Terminal() {
			return conflictError("proposal already resolved", map[string]any{
				"status":     proposal.Status,
				"approvedBy": proposal.ApprovedBy,
			})
		}

		proposal.Status = status
		proposal.ApprovedBy = actor
		approvedAt := at
		proposal.ApprovedAt = &approvedAt
		if err := tx.Put(ctx, content.ProposalPath(proposalID), proposal); err != nil {
			return err
		}

		entry, err := p.audit.recordTx(ctx, tx, actor, action, proposal.TargetPath, "proposal "+proposalID+" "+status, "")
		if err != nil {
			return err
		}

		event := ResolutionEvent{
			ID:         util.NewID("evt"),
			ProposalID: proposalID,
			TargetPath: proposal.TargetPath,
			Decision:   decision,
			Actor:      actor,
			At:         at,
			Status:     EventPending,
		}
		if err := tx.Put(ctx, content.OutboxPath(event.ID), event); err != nil {
			return err
		}

		result = Resolution{Proposal: proposal, Audit: entry, Event: event}
		return nil
	})
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return Resolution{}, domainErr
		}
		return Resolution{}, fmt.Errorf("resolve proposal %s: %w", proposalID, wrapStorage(err))
	}
	return result, nil
}

func (p *ProposalStore) Get(ctx context.Context, proposalID string) (Proposal, error) {
	var proposal Proposal
	if err := p.store.Get(ctx, content.ProposalPath(proposalID), &proposal); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Proposal{}, notFoundError("proposal " + proposalID + " not found")
		}
		return Proposal{}, err
	}
	return proposal, nil
}

// List returns proposals newest first, optionally filtered by status.
func (p *ProposalStore) List(ctx context.Context, status string) ([]Proposal, error) {
	raw, err := p.store.ListPrefix(ctx, content.ProposalsPrefix)
	if err != nil {
		return nil, err
	}
	proposals := make([]Proposal, 0, len(raw))
	for _, item := range raw {
		var proposal Proposal
		if err := decode(item.Doc, &proposal); err != nil {
			return nil, err
		}
		if status != "" && proposal.Status != status {
			continue
		}
		proposals = append(proposals, proposal)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].CreatedAt.After(proposals[j].CreatedAt) })
	return proposals, nil
}
