package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to a
// docstore scan.
type Service struct {
	meili *Meili
	scan  *StoreScan
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, scan *StoreScan) *Service {
	return &Service{meili: meili, scan: scan}
}

// Search tries Meilisearch if healthy, otherwise falls back to scanning the
// docstore.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store scan: %v", err)
	}

	results, total, err := s.scan.SearchContext(ctx, q)
	if err != nil {
		log.Printf("search: store scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexProposal indexes a proposal (fire-and-forget to Meilisearch).
func (s *Service) IndexProposal(p ProposalRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexProposal(p); err != nil {
			log.Printf("search: index proposal %s: %v", p.ID, err)
		}
	}()
}

// IndexActivity indexes an activity entry (fire-and-forget to Meilisearch).
func (s *Service) IndexActivity(a ActivityRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexActivity(a); err != nil {
			log.Printf("search: index activity %s: %v", a.ID, err)
		}
	}()
}

// ReindexAll bulk-pushes existing records into Meilisearch, called at
// startup when the indexes may be empty.
func (s *Service) ReindexAll(proposals []ProposalRecord, entries []ActivityRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if len(proposals) > 0 {
		if err := s.meili.IndexProposals(proposals); err != nil {
			log.Printf("search: reindex proposals: %v", err)
		}
	}
	if len(entries) > 0 {
		if err := s.meili.IndexActivities(entries); err != nil {
			log.Printf("search: reindex activity: %v", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
