// Package docstore is the transactional key-path store boundary. Documents
// are JSON values addressed by path; transactions have first-committer-wins
// semantics on conflicting writes to the same path.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// ErrTxConflict is returned when a transaction loses a first-committer-wins
// race. RunTransaction retries internally; callers only see it when the
// retry budget is exhausted.
var ErrTxConflict = errors.New("transaction conflict")

// Entry is a document together with its path, as returned by prefix listings.
type Entry struct {
	Path string
	Doc  json.RawMessage
}

// Tx is the view of the store inside a transaction. Reads observe a
// consistent snapshot; writes are buffered until commit.
type Tx interface {
	Get(ctx context.Context, path string, out any) error
	Put(ctx context.Context, path string, doc any) error
	Delete(ctx context.Context, path string) error
	ListPrefix(ctx context.Context, prefix string) ([]Entry, error)
}

// Store is the transactional key-path document store.
type Store interface {
	Get(ctx context.Context, path string, out any) error
	Put(ctx context.Context, path string, doc any) error
	Delete(ctx context.Context, path string) error
	ListPrefix(ctx context.Context, prefix string) ([]Entry, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

func decodeInto(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
