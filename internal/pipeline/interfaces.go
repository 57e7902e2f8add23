package pipeline

import (
	"context"
	"errors"

	"github.com/dvloznov/ledgersync/internal/dedup"
	"github.com/dvloznov/ledgersync/internal/domain"
)

// ErrNotFound is returned when a company or source does not exist.
var ErrNotFound = errors.New("not found")

// CompanyStore provides company and source configuration to the pipeline.
type CompanyStore interface {
	// FindWithSources returns the company with its configured sources, or an
	// error wrapping ErrNotFound.
	FindWithSources(ctx context.Context, companyID int64) (*domain.Company, error)

	// TouchSourceSync records that a source finished a successful sync.
	TouchSourceSync(ctx context.Context, sourceID int64) error

	// List returns every configured company.
	List(ctx context.Context) ([]*domain.Company, error)
}

// RecordReader serves stored records back to callers.
type RecordReader interface {
	// ListByCompany returns one page of records ordered by period start,
	// together with the total number of matches.
	ListByCompany(ctx context.Context, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error)
}

// RecordRepository is a record store usable both for persistence and reads.
type RecordRepository interface {
	dedup.RecordStore
	RecordReader
}

// RecordPersister stores the new records of one source payload.
type RecordPersister interface {
	PersistNew(ctx context.Context, records []domain.Record) (int, error)
}

// PayloadArchiver keeps a copy of each fetched payload.
type PayloadArchiver interface {
	// Archive stores payload and returns its location.
	Archive(ctx context.Context, companyID, sourceID int64, contentHash string, payload []byte) (string, error)
}
