package review

import (
	"encoding/json"
	"time"
)

// Proposal statuses. Pending is the only non-terminal status; once a
// proposal leaves it the document never changes again.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Decisions accepted by Resolve.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

var allowedChangeTypes = map[string]struct{}{
	"modify":     {},
	"add":        {},
	"delete":     {},
	"flag_error": {},
}

// Activity actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionApprove = "approve"
	ActionReject  = "reject"
)

type Proposal struct {
	ID         string          `json:"id"`
	TargetPath string          `json:"targetPath"`
	ChangeType string          `json:"changeType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason"`
	Status     string          `json:"status"`
	CreatedBy  string          `json:"createdBy"`
	CreatedAt  time.Time       `json:"createdAt"`
	ApprovedBy string          `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time      `json:"approvedAt,omitempty"`
}

// Terminal reports whether the proposal has been resolved.
func (p Proposal) Terminal() bool {
	return p.Status != StatusPending
}

type ActivityEntry struct {
	ID          string    `json:"id"`
	Actor       string    `json:"actor"`
	Action      string    `json:"action"`
	TargetPath  string    `json:"targetPath"`
	DiffSummary string    `json:"diffSummary,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IP          string    `json:"ip,omitempty"`
}

type WatchItem struct {
	TargetPath string    `json:"targetPath"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Notification struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	TargetPath string    `json:"targetPath"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	Read       bool      `json:"read"`
}

// Outbox event statuses.
const (
	EventPending = "pending"
	EventDone    = "done"
	EventFailed  = "failed"
)

// ResolutionEvent is the outbox record co-committed with a proposal
// resolution. It is drained by the dispatcher, which may redeliver; fan-out
// de-duplication absorbs the repeats.
type ResolutionEvent struct {
	ID            string    `json:"id"`
	ProposalID    string    `json:"proposalId"`
	TargetPath    string    `json:"targetPath"`
	Decision      string    `json:"decision"`
	Actor         string    `json:"actor"`
	At            time.Time `json:"at"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// Thread is the external discussion collaborator; only its participant list
// matters to fan-out.
type Thread struct {
	ID           string   `json:"id"`
	TargetPath   string   `json:"targetPath"`
	Participants []string `json:"participants"`
}

// Profile carries the optional delivery address for notification mail.
type Profile struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

func decode(raw json.RawMessage, out any) error {
	return json.Unmarshal(raw, out)
}
