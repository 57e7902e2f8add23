package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

// SyncJobRow is a row of the sync_jobs table.
type SyncJobRow struct {
	JobID      string              `bigquery:"job_id"`      // REQUIRED
	CompanyID  int64               `bigquery:"company_id"`  // REQUIRED
	SourceID   bigquery.NullInt64  `bigquery:"source_id"`   // NULLABLE until a source starts
	SourceName bigquery.NullString `bigquery:"source_name"` // NULLABLE

	Status string `bigquery:"status"` // running | completed | failed

	StartedTS   time.Time              `bigquery:"started_ts"`   // REQUIRED
	CompletedTS bigquery.NullTimestamp `bigquery:"completed_ts"` // NULLABLE

	Message bigquery.NullString `bigquery:"message"` // NULLABLE
}

func (row *SyncJobRow) toJob() *jobs.SyncJob {
	job := &jobs.SyncJob{
		ID:         row.JobID,
		CompanyID:  row.CompanyID,
		SourceID:   row.SourceID.Int64,
		SourceName: row.SourceName.StringVal,
		Status:     jobs.JobStatus(row.Status),
		StartedAt:  row.StartedTS,
		Error:      row.Message.StringVal,
	}
	if row.CompletedTS.Valid {
		t := row.CompletedTS.Timestamp
		job.CompletedAt = &t
	}
	return job
}
