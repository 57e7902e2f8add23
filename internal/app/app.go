// Package app wires the configured storage backend into the sync pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ledgersync/internal/catalog"
	"github.com/dvloznov/ledgersync/internal/config"
	"github.com/dvloznov/ledgersync/internal/dedup"
	"github.com/dvloznov/ledgersync/internal/fetch"
	"github.com/dvloznov/ledgersync/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ledgersync/internal/infra/bigquery"
	"github.com/dvloznov/ledgersync/internal/infra/memory"
	"github.com/dvloznov/ledgersync/internal/infra/mongodb"
	"github.com/dvloznov/ledgersync/internal/infra/postgres"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/jobs/inmemory"
	"github.com/dvloznov/ledgersync/internal/logger"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// Stack holds the stores selected by the configuration.
type Stack struct {
	Companies pipeline.CompanyStore
	Jobs      jobs.Store
	Records   pipeline.RecordRepository

	// Archiver is nil when no archive bucket is configured.
	Archiver *gcsuploader.Archiver

	fetchTimeout time.Duration
	closers      []func() error
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Stack, error) {
	log := logger.FromContext(ctx)
	s := &Stack{fetchTimeout: cfg.FetchTimeout}

	if err := s.openBackend(ctx, cfg); err != nil {
		_ = s.Close()
		return nil, err
	}

	if cfg.ArchiveBucket != "" {
		store, err := gcsuploader.NewGCSStore(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("Open: archive: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		s.Archiver = gcsuploader.NewArchiver(store, cfg.ArchiveBucket)
	} else {
		log.Info().Msg("No archive bucket configured - payload archiving disabled")
	}

	log.Info().Str("backend", string(cfg.Backend)).Msg("Storage backend ready")
	return s, nil
}

func (s *Stack) openBackend(ctx context.Context, cfg *config.Config) error {
	if cfg.Backend != config.BackendPostgres {
		c, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("Open: %w", err)
		}
		s.Companies = c
	}

	switch cfg.Backend {
	case config.BackendMemory:
		s.Jobs = inmemory.NewStore()
		s.Records = memory.NewRecordStore()

	case config.BackendBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.BQProject, cfg.BQDataset)
		if err != nil {
			return fmt.Errorf("Open: %w", err)
		}
		s.closers = append(s.closers, repo.Close)
		s.Jobs = repo.Jobs()
		s.Records = repo

	case config.BackendMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return fmt.Errorf("Open: %w", err)
		}
		s.closers = append(s.closers, func() error { return client.Disconnect(context.Background()) })
		provider := mongodb.NewMongoProvider(client, cfg.MongoDatabase)
		if err := provider.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("Open: %w", err)
		}
		s.Jobs = inmemory.NewStore()
		s.Records = mongodb.NewRecordStore(provider)

	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("Open: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.Companies = postgres.NewCompanyStore(pool)
		s.Jobs = postgres.NewJobStore(pool)
		s.Records = postgres.NewRecordStore(pool)

	default:
		return fmt.Errorf("Open: unknown backend %q", cfg.Backend)
	}
	return nil
}

// Syncer builds the pipeline that runs sync jobs against the stack.
func (s *Stack) Syncer() *pipeline.Syncer {
	sc := pipeline.SyncerConfig{
		Companies:    s.Companies,
		Jobs:         s.Jobs,
		Fetcher:      fetch.NewClient(nil),
		Persister:    dedup.NewPersister(s.Records),
		FetchTimeout: s.fetchTimeout,
	}
	if s.Archiver != nil {
		sc.Archiver = s.Archiver
	}
	return pipeline.NewSyncer(sc)
}

// Close releases every connection in reverse order of opening.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
