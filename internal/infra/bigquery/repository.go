package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// Repository stores records and sync jobs in a BigQuery dataset. It holds a
// shared client to avoid creating a new connection for each operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository for projectID.datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{
		client:    client,
		projectID: client.Project(),
		datasetID: datasetID,
	}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) table(name string) string {
	return qualifiedTable(r.projectID, r.datasetID, name)
}

func qualifiedTable(projectID, datasetID, name string) string {
	return fmt.Sprintf("%s.%s.%s", projectID, datasetID, name)
}

// FindExisting implements dedup.RecordStore.
func (r *Repository) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	return FindExistingRecordsWithClient(ctx, r.client, r.table(recordsTable), ids)
}

// InsertBatch implements dedup.RecordStore.
func (r *Repository) InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
	return InsertRecordsWithClient(ctx, r.client, r.table(recordsTable), records, skipDuplicates)
}

// ListByCompany implements pipeline.RecordReader.
func (r *Repository) ListByCompany(ctx context.Context, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error) {
	return ListRecordsWithClient(ctx, r.client, r.table(recordsTable), companyID, filter)
}

// Jobs returns a jobs.Store backed by the sync_jobs table.
func (r *Repository) Jobs() *JobStore {
	return &JobStore{client: r.client, table: r.table(syncJobsTable)}
}

// JobStore implements jobs.Store on BigQuery.
type JobStore struct {
	client *bigquery.Client
	table  string
}

// Create implements jobs.Store.
func (s *JobStore) Create(ctx context.Context, companyID int64) (*jobs.SyncJob, error) {
	return CreateSyncJobWithClient(ctx, s.client, s.table, companyID)
}

// SetCurrentSource implements jobs.Store.
func (s *JobStore) SetCurrentSource(ctx context.Context, jobID string, sourceID int64, sourceName string) error {
	return SetSyncJobSourceWithClient(ctx, s.client, s.table, jobID, sourceID, sourceName)
}

// Finish implements jobs.Store.
func (s *JobStore) Finish(ctx context.Context, jobID string, status jobs.JobStatus, message string) error {
	return FinishSyncJobWithClient(ctx, s.client, s.table, jobID, status, message)
}

// Get implements jobs.Store.
func (s *JobStore) Get(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	return GetSyncJobWithClient(ctx, s.client, s.table, jobID)
}

// List implements jobs.Store.
func (s *JobStore) List(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	return ListSyncJobsWithClient(ctx, s.client, s.table, filter)
}

var (
	_ pipeline.RecordRepository = (*Repository)(nil)
	_ jobs.Store                = (*JobStore)(nil)
)
