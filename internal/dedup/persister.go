package dedup

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
)

const (
	// BatchSize bounds the number of records per insert call.
	BatchSize = 100

	// LookupChunkSize bounds the number of fingerprints per existence query.
	LookupChunkSize = 1000
)

// RecordStore is the persistence collaborator of the Persister.
type RecordStore interface {
	// FindExisting returns the subset of ids already stored.
	FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error)

	// InsertBatch stores records and returns how many rows were actually
	// written. With skipDuplicates, rows whose OriginalID already exists are
	// skipped silently instead of failing the batch.
	InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error)
}

// PersistenceError reports a failed existence check or insert.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist records: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persister fingerprints records and inserts the ones not stored yet.
type Persister struct {
	store       RecordStore
	batchSize   int
	lookupChunk int
}

// NewPersister creates a persister writing to store in batches of BatchSize.
func NewPersister(store RecordStore) *Persister {
	return &Persister{
		store:       store,
		batchSize:   BatchSize,
		lookupChunk: LookupChunkSize,
	}
}

// PersistNew drops zero amounts, assigns fingerprints, filters out records
// already in the store (and repeats within records) and inserts the rest.
// It returns the number of rows the store reports as inserted.
//
// Batches inserted before a failure stay committed.
func (p *Persister) PersistNew(ctx context.Context, records []domain.Record) (int, error) {
	log := logger.FromContext(ctx)

	candidates := make([]domain.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Amount.IsZero() {
			continue
		}
		r.OriginalID = Fingerprint(r)
		if _, dup := seen[r.OriginalID]; dup {
			continue
		}
		seen[r.OriginalID] = struct{}{}
		candidates = append(candidates, r)
	}

	if len(candidates) == 0 {
		log.Info().Msg("No valid records found to process")
		return 0, nil
	}

	existing, err := p.findExisting(ctx, candidates)
	if err != nil {
		return 0, err
	}

	fresh := candidates[:0]
	for _, r := range candidates {
		if _, ok := existing[r.OriginalID]; !ok {
			fresh = append(fresh, r)
		}
	}

	log.Info().
		Int("existing", len(existing)).
		Int("total", len(candidates)).
		Int("new", len(fresh)).
		Msg("Filtered records against store")

	inserted := 0
	for start := 0; start < len(fresh); start += p.batchSize {
		end := min(start+p.batchSize, len(fresh))
		n, err := p.store.InsertBatch(ctx, fresh[start:end], true)
		if err != nil {
			return inserted, &PersistenceError{Op: fmt.Sprintf("insert batch %d-%d", start, end), Err: err}
		}
		inserted += n
	}

	log.Info().Int("inserted", inserted).Msg("Persisted records")
	return inserted, nil
}

func (p *Persister) findExisting(ctx context.Context, records []domain.Record) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for start := 0; start < len(records); start += p.lookupChunk {
		end := min(start+p.lookupChunk, len(records))
		ids := make([]string, 0, end-start)
		for _, r := range records[start:end] {
			ids = append(ids, r.OriginalID)
		}
		found, err := p.store.FindExisting(ctx, ids)
		if err != nil {
			return nil, &PersistenceError{Op: "find existing", Err: err}
		}
		for id := range found {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}
