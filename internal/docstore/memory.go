package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const memoryTxRetries = 5

// MemoryStore is an in-process Store with optimistic transactions: reads
// record the version they observed and commit fails if any of those paths
// changed since, so the first committer wins. Used by tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	raw     []byte
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryDoc)}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, path string, out any) error {
	s.mu.Lock()
	doc, ok := s.docs[path]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return decodeInto(doc.raw, out)
}

func (s *MemoryStore) Put(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = memoryDoc{raw: raw, version: s.docs[path].version + 1}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

func (s *MemoryStore) ListPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPrefixLocked(prefix), nil
}

func (s *MemoryStore) listPrefixLocked(prefix string) []Entry {
	entries := make([]Entry, 0)
	for path, doc := range s.docs {
		if strings.HasPrefix(path, prefix) {
			entries = append(entries, Entry{Path: path, Doc: append(json.RawMessage(nil), doc.raw...)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < memoryTxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memoryTx{store: s, reads: make(map[string]int64), writes: make(map[string]*[]byte)}
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
		lastErr = ErrTxConflict
	}
	return lastErr
}

func (s *MemoryStore) commit(tx *memoryTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, version := range tx.reads {
		if s.docs[path].version != version {
			return false
		}
	}
	for path, raw := range tx.writes {
		if raw == nil {
			delete(s.docs, path)
			continue
		}
		s.docs[path] = memoryDoc{raw: *raw, version: s.docs[path].version + 1}
	}
	return true
}

type memoryTx struct {
	store  *MemoryStore
	reads  map[string]int64
	writes map[string]*[]byte // nil value marks a delete
}

func (t *memoryTx) Get(ctx context.Context, path string, out any) error {
	if raw, ok := t.writes[path]; ok {
		if raw == nil {
			return ErrNotFound
		}
		return decodeInto(*raw, out)
	}
	t.store.mu.Lock()
	doc, ok := t.store.docs[path]
	t.store.mu.Unlock()
	t.reads[path] = doc.version
	if !ok {
		return ErrNotFound
	}
	return decodeInto(doc.raw, out)
}

func (t *memoryTx) Put(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	t.writes[path] = &raw
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, path string) error {
	t.writes[path] = nil
	return nil
}

func (t *memoryTx) ListPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	t.store.mu.Lock()
	entries := t.store.listPrefixLocked(prefix)
	for _, entry := range entries {
		t.reads[entry.Path] = t.store.docs[entry.Path].version
	}
	t.store.mu.Unlock()

	merged := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if raw, ok := t.writes[entry.Path]; ok {
			if raw == nil {
				continue
			}
			entry.Doc = append(json.RawMessage(nil), *raw...)
		}
		merged = append(merged, entry)
	}
	for path, raw := range t.writes {
		if raw == nil || !strings.HasPrefix(path, prefix) {
			continue
		}
		seen := false
		for _, entry := range merged {
			if entry.Path == path {
				seen = true
				break
			}
		}
		if !seen {
			merged = append(merged, Entry{Path: path, Doc: append(json.RawMessage(nil), *raw...)})
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Path < merged[j].Path })
	return merged, nil
}
