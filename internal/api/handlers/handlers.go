package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// SyncService is the part of pipeline.Service the handlers use.
type SyncService interface {
	StartSync(ctx context.Context, companyID int64) (*pipeline.SyncStarted, error)
	GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error)
	ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error)
	ListCompanyJobs(ctx context.Context, companyID, sourceID int64) ([]*jobs.SyncJob, error)
	ListRecords(ctx context.Context, companyID int64, filter domain.RecordFilter) (*domain.RecordPage, error)
	ListCompanies(ctx context.Context) ([]*domain.Company, error)
	GetCompany(ctx context.Context, companyID int64) (*domain.Company, error)
}

var _ SyncService = (*pipeline.Service)(nil)

// badRequest is a client input error rendered as 400.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// writeServiceError maps err to a status code. Unexpected errors are logged
// and hidden behind fallback.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, notFound, fallback string) {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		middleware.WriteError(w, http.StatusBadRequest, br.msg)
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		middleware.WriteError(w, http.StatusNotFound, notFound)
	case errors.Is(err, jobs.ErrQueueFull):
		log.Warn().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusServiceUnavailable, "Sync queue is full, try again later")
	default:
		log.Error().Err(err).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// parseID reads a positive integer identifier.
func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequestf("Invalid %s: %s", name, raw)
	}
	return id, nil
}

// optionalID reads an optional positive identifier; empty means zero.
func optionalID(name, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return parseID(name, raw)
}

// optionalInt reads an optional integer that must be at least min.
func optionalInt(name, raw string, min int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return 0, badRequestf("Invalid %s: %s", name, raw)
	}
	return n, nil
}

// optionalDate reads an optional YYYY-MM-DD date.
func optionalDate(name, raw string) (*civil.Date, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, badRequestf("Invalid %s format, expected YYYY-MM-DD: %s", name, raw)
	}
	return &d, nil
}
