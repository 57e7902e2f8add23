package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

// JobStore implements jobs.Store over the sync_jobs table.
type JobStore struct {
	db  DB
	now func() time.Time
}

// NewJobStore creates a JobStore over db.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db, now: time.Now}
}

const jobColumns = `id, company_id, COALESCE(source_id, 0), COALESCE(source_name, ''),
	status, started_at, completed_at, COALESCE(message, '')`

// Create implements jobs.Store.
func (s *JobStore) Create(ctx context.Context, companyID int64) (*jobs.SyncJob, error) {
	job := &jobs.SyncJob{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		Status:    jobs.JobStatusRunning,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_jobs (id, company_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		job.ID, job.CompanyID, string(job.Status), job.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateJob: %w", err)
	}
	return job, nil
}

// SetCurrentSource implements jobs.Store.
func (s *JobStore) SetCurrentSource(ctx context.Context, jobID string, sourceID int64, sourceName string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sync_jobs SET source_id = $2, source_name = $3 WHERE id = $1 AND status = 'running'`,
		jobID, sourceID, sourceName)
	if err != nil {
		return fmt.Errorf("SetCurrentSource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainNoUpdate(ctx, "SetCurrentSource", jobID)
	}
	return nil
}

// Finish implements jobs.Store.
func (s *JobStore) Finish(ctx context.Context, jobID string, status jobs.JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("Finish: %q is not a terminal status", status)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE sync_jobs SET status = $2, message = $3, completed_at = $4 WHERE id = $1 AND status = 'running'`,
		jobID, string(status), message, s.now().UTC())
	if err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainNoUpdate(ctx, "Finish", jobID)
	}
	return nil
}

// explainNoUpdate tells a missing job from a finished one.
func (s *JobStore) explainNoUpdate(ctx context.Context, op, jobID string) error {
	if _, err := s.Get(ctx, jobID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: job %s: %w", op, jobID, jobs.ErrJobFinished)
}

// Get implements jobs.Store.
func (s *JobStore) Get(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob: %w", err)
	}
	return job, nil
}

// List implements jobs.Store.
func (s *JobStore) List(ctx context.Context, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	where, args := jobConditions(filter)
	sql := `SELECT ` + jobColumns + ` FROM sync_jobs` + where + ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: scan: %w", err)
	}
	return list, nil
}

// jobConditions builds a WHERE clause (with leading space) and its
// positional arguments.
func jobConditions(filter jobs.JobFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.CompanyID != 0 {
		args = append(args, filter.CompanyID)
		conds = append(conds, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if filter.SourceID != 0 {
		args = append(args, filter.SourceID)
		conds = append(conds, fmt.Sprintf("source_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanJob(row pgx.CollectableRow) (*jobs.SyncJob, error) {
	var (
		job    jobs.SyncJob
		status string
	)
	if err := row.Scan(&job.ID, &job.CompanyID, &job.SourceID, &job.SourceName,
		&status, &job.StartedAt, &job.CompletedAt, &job.Error); err != nil {
		return nil, err
	}
	job.Status = jobs.JobStatus(status)
	return &job, nil
}

var _ jobs.Store = (*JobStore)(nil)
