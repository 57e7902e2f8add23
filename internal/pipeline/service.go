package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/logger"
)

// SyncStarted describes a sync accepted by StartSync.
type SyncStarted struct {
	JobID        string         `json:"jobId"`
	Message      string         `json:"message"`
	Status       jobs.JobStatus `json:"status"`
	SourcesCount int            `json:"sourcesCount"`
}

// Service is the entry point used by the HTTP API and the CLI.
type Service struct {
	companies CompanyStore
	jobs      jobs.Store
	publisher jobs.Publisher
	records   RecordReader
}

// NewService creates a Service. Sync runs are handed to publisher.
func NewService(companies CompanyStore, jobStore jobs.Store, publisher jobs.Publisher, records RecordReader) *Service {
	return &Service{
		companies: companies,
		jobs:      jobStore,
		publisher: publisher,
		records:   records,
	}
}

// StartSync creates a running job for companyID and queues its run. It
// returns as soon as the run is queued; the outcome is observed through
// GetJob. An unknown company still gets a job, which the run marks failed.
func (s *Service) StartSync(ctx context.Context, companyID int64) (*SyncStarted, error) {
	log := logger.FromContext(ctx)

	sourcesCount := 0
	company, err := s.companies.FindWithSources(ctx, companyID)
	switch {
	case err == nil:
		sourcesCount = len(company.Sources)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("StartSync: load company %d: %w", companyID, err)
	}

	job, err := s.jobs.Create(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("StartSync: create job: %w", err)
	}

	if err := s.publisher.PublishSync(ctx, jobs.SyncRequest{JobID: job.ID, CompanyID: companyID}); err != nil {
		if finishErr := s.jobs.Finish(ctx, job.ID, jobs.JobStatusFailed, err.Error()); finishErr != nil {
			log.Error().Err(finishErr).Str("job_id", job.ID).Msg("Failed to mark unqueued job as failed")
		}
		return nil, fmt.Errorf("StartSync: queue job %s: %w", job.ID, err)
	}

	log.Info().
		Str("job_id", job.ID).
		Int64("company_id", companyID).
		Int("sources", sourcesCount).
		Msg("Sync job queued")

	return &SyncStarted{
		JobID:        job.ID,
		Message:      StartedMessage,
		Status:       job.Status,
		SourcesCount: sourcesCount,
	}, nil
}

// GetJob returns a job by ID. Unknown IDs fail with jobs.ErrJobNotFound.
func (s *Service) GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// ListJobs returns jobs matching filter, newest first.
func (s *Service) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	return s.jobs.List(ctx, filter)
}

// ListCompanyJobs returns the jobs of an existing company, optionally limited
// to one source.
func (s *Service) ListCompanyJobs(ctx context.Context, companyID, sourceID int64) ([]*jobs.SyncJob, error) {
	if _, err := s.companies.FindWithSources(ctx, companyID); err != nil {
		return nil, err
	}
	return s.jobs.List(ctx, jobs.JobFilter{CompanyID: companyID, SourceID: sourceID})
}

// ListRecords returns one page of an existing company's stored records.
func (s *Service) ListRecords(ctx context.Context, companyID int64, filter domain.RecordFilter) (*domain.RecordPage, error) {
	if _, err := s.companies.FindWithSources(ctx, companyID); err != nil {
		return nil, err
	}

	filter = filter.Normalize()
	records, total, err := s.records.ListByCompany(ctx, companyID, filter)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return &domain.RecordPage{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Limit:   filter.Limit,
	}, nil
}

// ListCompanies returns every configured company.
func (s *Service) ListCompanies(ctx context.Context) ([]*domain.Company, error) {
	return s.companies.List(ctx)
}

// GetCompany returns a company with its sources.
func (s *Service) GetCompany(ctx context.Context, companyID int64) (*domain.Company, error) {
	return s.companies.FindWithSources(ctx, companyID)
}
