package review

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"almanac/api/internal/docstore"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationError(message string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: message}
}

func notFoundError(message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func conflictError(message string, details any) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "CONFLICT", Message: message, Details: details}
}

// TransientStorageError marks a store fault as retryable: the operation did
// not commit and may be re-issued as-is by the caller or the worker.
type TransientStorageError struct {
	Err error
}

func (e *TransientStorageError) Error() string {
	return "transient storage error: " + e.Err.Error()
}

func (e *TransientStorageError) Unwrap() error {
	return e.Err
}

// wrapStorage classifies a store error. Lost transaction races are
// transient; everything else passes through unchanged.
func wrapStorage(err error) error {
	if errors.Is(err, docstore.ErrTxConflict) {
		return &TransientStorageError{Err: err}
	}
	return err
}

// RecipientError records one recipient that could not be notified.
type RecipientError struct {
	Recipient string
	Err       error
}

// PartialFanoutFailure reports the recipients a fan-out call could not reach.
// The triggering resolution is still considered successful; callers treat
// this as informational.
type PartialFanoutFailure struct {
	EventID string
	Failed  []RecipientError
}

func (e *PartialFanoutFailure) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Recipient)
	}
	return fmt.Sprintf("fanout for event %s failed for %d recipient(s): %s", e.EventID, len(e.Failed), strings.Join(names, ", "))
}

// FailedRecipients returns the recipient names, for API payloads.
func (e *PartialFanoutFailure) FailedRecipients() []string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Recipient)
	}
	return names
}
