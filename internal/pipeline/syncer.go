package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ledgersync/internal/extract"
	"github.com/dvloznov/ledgersync/internal/fetch"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/logger"
)

// Syncer runs sync jobs: it walks a company's sources one at a time, isolates
// per-source failures and moves the job to a terminal status.
type Syncer struct {
	companies CompanyStore
	jobs      jobs.Store
	steps     []SourceStep
}

// SyncerConfig holds the collaborators of a Syncer. Archiver is optional.
type SyncerConfig struct {
	Companies    CompanyStore
	Jobs         jobs.Store
	Fetcher      fetch.Fetcher
	Persister    RecordPersister
	Archiver     PayloadArchiver
	Detector     *extract.Detector
	Registry     *extract.Registry
	FetchTimeout time.Duration
}

// NewSyncer creates a Syncer. Detector and Registry default to the built-in
// detector and extractors; FetchTimeout defaults to DefaultFetchTimeout.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.Detector == nil {
		cfg.Detector = extract.NewDetector()
	}
	if cfg.Registry == nil {
		cfg.Registry = extract.DefaultRegistry()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return &Syncer{
		companies: cfg.Companies,
		jobs:      cfg.Jobs,
		steps: []SourceStep{
			&FetchStep{Fetcher: cfg.Fetcher, Timeout: cfg.FetchTimeout},
			&SelectRecordsStep{},
			&ArchivePayloadStep{Archiver: cfg.Archiver},
			&ExtractStep{Detector: cfg.Detector, Registry: cfg.Registry},
			&PersistStep{Persister: cfg.Persister},
		},
	}
}

// Handle adapts Run to the job queue.
func (s *Syncer) Handle(ctx context.Context, req jobs.SyncRequest) error {
	return s.Run(ctx, req.JobID, req.CompanyID)
}

// Run executes the job jobID for companyID. The job must be running.
//
// A missing company or a company without sources fails the job. Otherwise
// every source is attempted in order; a source that cannot be fetched,
// extracted or persisted is logged and skipped, and the job completes with
// the number of records inserted across all sources.
func (s *Syncer) Run(ctx context.Context, jobID string, companyID int64) error {
	log := logger.FromContext(ctx).With().
		Str("job_id", jobID).
		Int64("company_id", companyID).
		Logger()
	ctx = logger.WithContext(ctx, log)

	company, err := s.companies.FindWithSources(ctx, companyID)
	switch {
	case errors.Is(err, ErrNotFound):
		err = fmt.Errorf("No configuration found for company %d", companyID)
	case err != nil:
		err = fmt.Errorf("load company %d: %w", companyID, err)
	case len(company.Sources) == 0:
		err = fmt.Errorf("No API data sources found for company %d", companyID)
	}
	if err != nil {
		log.Error().Err(err).Msg("Error processing API data")
		if finishErr := s.jobs.Finish(ctx, jobID, jobs.JobStatusFailed, err.Error()); finishErr != nil {
			return fmt.Errorf("Run: mark job failed: %w", finishErr)
		}
		return err
	}

	log.Info().Int("sources", len(company.Sources)).Msg("Processing API data")

	total := 0
	for _, src := range company.Sources {
		srcLog := log.With().
			Int64("source_id", src.ID).
			Str("source_name", src.Name).
			Logger()
		srcCtx := logger.WithContext(ctx, srcLog)

		if err := s.jobs.SetCurrentSource(srcCtx, jobID, src.ID, src.Name); err != nil {
			srcLog.Warn().Err(err).Msg("Failed to record current source")
		}

		state := &SourceState{CompanyID: companyID, Source: src}
		if err := s.runSteps(srcCtx, state); err != nil {
			if errors.Is(err, errNoPayload) {
				srcLog.Warn().Str("endpoint", src.Endpoint).Msg("No data received, skipping source")
			} else {
				srcLog.Error().Err(err).Str("endpoint", src.Endpoint).Msg("Error processing source")
			}
			continue
		}

		total += state.Inserted
		srcLog.Info().
			Str("format", string(state.Format)).
			Int("extracted", len(state.Records)).
			Int("inserted", state.Inserted).
			Msg("Processed source")

		if err := s.companies.TouchSourceSync(srcCtx, src.ID); err != nil {
			srcLog.Warn().Err(err).Msg("Failed to update last sync time")
		}
	}

	summary := fmt.Sprintf(summaryFormat, total)
	if err := s.jobs.Finish(ctx, jobID, jobs.JobStatusCompleted, summary); err != nil {
		return fmt.Errorf("Run: mark job completed: %w", err)
	}
	log.Info().Int("inserted", total).Msg("API ETL process completed")
	return nil
}

func (s *Syncer) runSteps(ctx context.Context, state *SourceState) error {
	for _, step := range s.steps {
		if err := step.Execute(ctx, state); err != nil {
			return err
		}
	}
	return nil
}
