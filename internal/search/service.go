package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexEvent indexes an event (fire-and-forget to Meilisearch).
func (s *Service) IndexEvent(rec EventRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEvent(rec); err != nil {
			log.Printf("search: index event %s: %v", rec.ID, err)
		}
	}()
}

// IndexGroup indexes an event group (fire-and-forget to Meilisearch).
func (s *Service) IndexGroup(rec GroupRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexGroup(rec); err != nil {
			log.Printf("search: index group %s: %v", rec.ID, err)
		}
	}()
}

// DeleteEvent removes an event from the search index (fire-and-forget).
func (s *Service) DeleteEvent(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEvent(id); err != nil {
			log.Printf("search: delete event %s: %v", id, err)
		}
	}()
}

// DeleteGroup removes an event group from the search index (fire-and-forget).
func (s *Service) DeleteGroup(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteGroup(id); err != nil {
			log.Printf("search: delete group %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	events, groups, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexEvents(events); err != nil {
		log.Printf("search: reindex events: %v", err)
	}
	if err := s.meili.IndexGroups(groups); err != nil {
		log.Printf("search: reindex groups: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
