package review

import (
	"errors"
	"fmt"
	"testing"

	"almanac/api/internal/docstore"
)

func TestWrapStorageClassifiesConflicts(t *testing.T) {
	wrapped := wrapStorage(fmt.Errorf("commit: %w", docstore.ErrTxConflict))
	var transient *TransientStorageError
	if !errors.As(wrapped, &transient) {
		t.Fatalf("got %T, want TransientStorageError", wrapped)
	}
	if !errors.Is(wrapped, docstore.ErrTxConflict) {
		t.Fatal("unwrap chain lost the cause")
	}

	plain := errors.New("disk on fire")
	if got := wrapStorage(plain); got != plain {
		t.Fatalf("non-conflict error rewrapped: %v", got)
	}
}

func TestPartialFanoutFailureError(t *testing.T) {
	partial := &PartialFanoutFailure{
		EventID: "evt_1",
		Failed: []RecipientError{
			{Recipient: "alice", Err: errors.New("boom")},
			{Recipient: "bob", Err: errors.New("boom")},
		},
	}
	msg := partial.Error()
	if msg != "fanout for event evt_1 failed for 2 recipient(s): alice, bob" {
		t.Fatalf("Error() = %q", msg)
	}
}
