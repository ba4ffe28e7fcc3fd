package review

import (
	"context"
	"sort"
	"time"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
	"almanac/api/internal/util"
)

// AuditLog appends activity records. Entries are write-once: nothing in this
// package updates or deletes them. Record is not idempotent — if a caller
// redelivers, the log carries both rows; completeness outranks exact-once
// here, so duplicates are accepted rather than silently collapsed.
type AuditLog struct {
	store docstore.Store
	now   func() time.Time
}

func NewAuditLog(store docstore.Store) *AuditLog {
	return &AuditLog{store: store, now: time.Now}
}

// Record appends one entry. Storage faults are returned to the caller, who
// owns the retry policy.
func (a *AuditLog) Record(ctx context.Context, actor, action, targetPath, diffSummary, ip string) (ActivityEntry, error) {
	entry := a.newEntry(actor, action, targetPath, diffSummary, ip)
	if err := a.store.Put(ctx, content.ActivityPath(entry.ID), entry); err != nil {
		return ActivityEntry{}, err
	}
	return entry, nil
}

// recordTx appends an entry inside a caller-owned transaction, so the audit
// row commits or aborts together with the mutation it describes.
func (a *AuditLog) recordTx(ctx context.Context, tx docstore.Tx, actor, action, targetPath, diffSummary, ip string) (ActivityEntry, error) {
	entry := a.newEntry(actor, action, targetPath, diffSummary, ip)
	if err := tx.Put(ctx, content.ActivityPath(entry.ID), entry); err != nil {
		return ActivityEntry{}, err
	}
	return entry, nil
}

func (a *AuditLog) newEntry(actor, action, targetPath, diffSummary, ip string) ActivityEntry {
	return ActivityEntry{
		ID:          util.NewID("act"),
		Actor:       actor,
		Action:      action,
		TargetPath:  targetPath,
		DiffSummary: diffSummary,
		CreatedAt:   a.now().UTC(),
		IP:          ip,
	}
}

// List returns entries newest first. Reading the log is a convenience for
// consumers outside the pipeline; the write path above is the contract.
func (a *AuditLog) List(ctx context.Context, limit int) ([]ActivityEntry, error) {
	raw, err := a.store.ListPrefix(ctx, content.ActivityPrefix)
	if err != nil {
		return nil, err
	}
	entries := make([]ActivityEntry, 0, len(raw))
	for _, item := range raw {
		var entry ActivityEntry
		if err := decode(item.Doc, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
