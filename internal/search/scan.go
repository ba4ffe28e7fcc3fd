package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"almanac/api/internal/content"
	"almanac/api/internal/docstore"
)

// StoreScan is the fallback Searcher: a substring scan over the proposal and
// activity document families in the key-path store. Slower and dumber than
// Meilisearch, but always available.
type StoreScan struct {
	store docstore.Store
}

func NewStoreScan(store docstore.Store) *StoreScan {
	return &StoreScan{store: store}
}

// Healthy always reports true; the fallback has no external dependency.
func (s *StoreScan) Healthy() bool {
	return true
}

func (s *StoreScan) Search(q Query) ([]Result, int, error) {
	return s.SearchContext(context.Background(), q)
}

func (s *StoreScan) SearchContext(ctx context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	var results []Result
	if q.FilterType == "" || q.FilterType == ResultProposal {
		hits, err := s.scanProposals(ctx, needle)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, hits...)
	}
	if q.FilterType == "" || q.FilterType == ResultActivity {
		hits, err := s.scanActivity(ctx, needle)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, hits...)
	}

	total := len(results)
	if q.Offset >= len(results) {
		return []Result{}, total, nil
	}
	results = results[q.Offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

func (s *StoreScan) scanProposals(ctx context.Context, needle string) ([]Result, error) {
	entries, err := s.store.ListPrefix(ctx, content.ProposalsPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan proposals: %w", err)
	}
	var results []Result
	for _, entry := range entries {
		var record ProposalRecord
		if err := json.Unmarshal(entry.Doc, &record); err != nil {
			continue
		}
		if !matches(needle, record.Reason, record.TargetPath, record.CreatedBy) {
			continue
		}
		results = append(results, Result{
			Type:       ResultProposal,
			ID:         record.ID,
			TargetPath: record.TargetPath,
			Title:      record.TargetPath,
			Snippet:    record.Reason,
			Actor:      record.CreatedBy,
			Status:     record.Status,
		})
	}
	return results, nil
}

func (s *StoreScan) scanActivity(ctx context.Context, needle string) ([]Result, error) {
	entries, err := s.store.ListPrefix(ctx, content.ActivityPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	var results []Result
	for _, entry := range entries {
		var record ActivityRecord
		if err := json.Unmarshal(entry.Doc, &record); err != nil {
			continue
		}
		if !matches(needle, record.DiffSummary, record.TargetPath, record.Actor) {
			continue
		}
		results = append(results, Result{
			Type:       ResultActivity,
			ID:         record.ID,
			TargetPath: record.TargetPath,
			Title:      record.TargetPath,
			Snippet:    record.DiffSummary,
			Actor:      record.Actor,
			Status:     record.Action,
		})
	}
	return results, nil
}

func matches(needle string, fields ...string) bool {
	if needle == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
