package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

const (
	syncJobsTable = "sync_jobs"

	// maxMessageLen truncates job messages stored in BigQuery.
	maxMessageLen = 2000
)

const syncJobColumns = `job_id, company_id, source_id, source_name, status, started_ts, completed_ts, message`

// CreateSyncJobWithClient inserts a running job for companyID.
func CreateSyncJobWithClient(ctx context.Context, client *bigquery.Client, table string, companyID int64) (*jobs.SyncJob, error) {
	job := &jobs.SyncJob{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Status:    jobs.JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	q := client.Query(`
		INSERT INTO ` + "`" + table + "`" + ` (job_id, company_id, status, started_ts)
		VALUES (@job_id, @company_id, @status, @started_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "job_id", Value: job.ID},
		{Name: "company_id", Value: companyID},
		{Name: "status", Value: string(job.Status)},
		{Name: "started_ts", Value: job.StartedAt},
	}

	if _, err := runDML(ctx, q); err != nil {
		return nil, fmt.Errorf("CreateSyncJob: %w", err)
	}
	return job, nil
}

// SetSyncJobSourceWithClient records the source a running job is processing.
func SetSyncJobSourceWithClient(ctx context.Context, client *bigquery.Client, table, jobID string, sourceID int64, sourceName string) error {
	q := client.Query(`
		UPDATE ` + "`" + table + "`" + `
		SET source_id = @source_id,
		    source_name = @source_name
		WHERE job_id = @job_id AND status = 'running'
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source_id", Value: sourceID},
		{Name: "source_name", Value: sourceName},
		{Name: "job_id", Value: jobID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("SetSyncJobSource: %w", err)
	}
	if affected == 0 {
		return explainNoUpdate(ctx, client, table, jobID)
	}
	return nil
}

// FinishSyncJobWithClient moves a running job to a terminal status.
func FinishSyncJobWithClient(ctx context.Context, client *bigquery.Client, table, jobID string, status jobs.JobStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("FinishSyncJob: status %q is not terminal", status)
	}
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}

	q := client.Query(`
		UPDATE ` + "`" + table + "`" + `
		SET status = @status,
		    completed_ts = @completed_ts,
		    message = @message
		WHERE job_id = @job_id AND status = 'running'
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "completed_ts", Value: time.Now().UTC()},
		{Name: "message", Value: message},
		{Name: "job_id", Value: jobID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("FinishSyncJob: %w", err)
	}
	if affected == 0 {
		return explainNoUpdate(ctx, client, table, jobID)
	}
	return nil
}

// GetSyncJobWithClient retrieves a job by ID.
func GetSyncJobWithClient(ctx context.Context, client *bigquery.Client, table, jobID string) (*jobs.SyncJob, error) {
	q := client.Query(`SELECT ` + syncJobColumns + ` FROM ` + "`" + table + "`" + ` WHERE job_id = @job_id LIMIT 1`)
	q.Parameters = []bigquery.QueryParameter{{Name: "job_id", Value: jobID}}

	list, err := readSyncJobs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetSyncJob: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return list[0], nil
}

// ListSyncJobsWithClient retrieves jobs matching filter, newest first.
func ListSyncJobsWithClient(ctx context.Context, client *bigquery.Client, table string, filter jobs.JobFilter) ([]*jobs.SyncJob, error) {
	conds := []string{"TRUE"}
	var params []bigquery.QueryParameter
	if filter.CompanyID != 0 {
		conds = append(conds, "company_id = @company_id")
		params = append(params, bigquery.QueryParameter{Name: "company_id", Value: filter.CompanyID})
	}
	if filter.SourceID != 0 {
		conds = append(conds, "source_id = @source_id")
		params = append(params, bigquery.QueryParameter{Name: "source_id", Value: filter.SourceID})
	}
	if filter.Status != "" {
		conds = append(conds, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}

	query := `SELECT ` + syncJobColumns + ` FROM ` + "`" + table + "`" +
		` WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY started_ts DESC, job_id`
	if filter.Limit > 0 {
		query += ` LIMIT @limit`
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
		if filter.Offset > 0 {
			query += ` OFFSET @offset`
			params = append(params, bigquery.QueryParameter{Name: "offset", Value: filter.Offset})
		}
	}

	q := client.Query(query)
	q.Parameters = params

	list, err := readSyncJobs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListSyncJobs: %w", err)
	}
	if filter.Limit <= 0 && filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return []*jobs.SyncJob{}, nil
		}
		list = list[filter.Offset:]
	}
	return list, nil
}

func readSyncJobs(ctx context.Context, q *bigquery.Query) ([]*jobs.SyncJob, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var list []*jobs.SyncJob
	for {
		var row SyncJobRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		list = append(list, row.toJob())
	}
	return list, nil
}

// explainNoUpdate turns an UPDATE that matched nothing into the right
// sentinel error.
func explainNoUpdate(ctx context.Context, client *bigquery.Client, table, jobID string) error {
	job, err := GetSyncJobWithClient(ctx, client, table, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", jobs.ErrJobFinished, jobID, job.Status)
}

// runDML runs a DML statement and returns the number of affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}
