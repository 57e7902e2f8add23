// Package memory provides a process-local record store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// RecordStore keeps records in memory keyed by OriginalID.
// It is safe for concurrent use.
type RecordStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.Record
	ordered []string
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{byID: make(map[string]domain.Record)}
}

// FindExisting implements dedup.RecordStore.
func (s *RecordStore) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// InsertBatch implements dedup.RecordStore.
func (s *RecordStore) InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !skipDuplicates {
		for _, r := range records {
			if _, ok := s.byID[r.OriginalID]; ok {
				return 0, fmt.Errorf("InsertBatch: duplicate original_id %s", r.OriginalID)
			}
		}
	}

	inserted := 0
	for _, r := range records {
		if r.OriginalID == "" {
			return inserted, fmt.Errorf("InsertBatch: record without original_id")
		}
		if _, ok := s.byID[r.OriginalID]; ok {
			continue
		}
		s.byID[r.OriginalID] = r
		s.ordered = append(s.ordered, r.OriginalID)
		inserted++
	}
	return inserted, nil
}

// ListByCompany implements pipeline.RecordReader.
func (s *RecordStore) ListByCompany(ctx context.Context, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	var matched []domain.Record
	for _, id := range s.ordered {
		r := s.byID[id]
		if r.CompanyID != companyID || !filter.Matches(&r) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].FromDate < matched[j].FromDate
	})

	total := len(matched)
	start := min(filter.Offset(), total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ pipeline.RecordRepository = (*RecordStore)(nil)
