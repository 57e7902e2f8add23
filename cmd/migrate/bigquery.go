package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

type bigQueryTarget struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

func newBigQueryTarget(ctx context.Context, projectID, datasetID string) (*bigQueryTarget, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create BigQuery client: %w", err)
	}
	return &bigQueryTarget{client: client, projectID: projectID, datasetID: datasetID}, nil
}

func (t *bigQueryTarget) Placeholders() map[string]string {
	return map[string]string{"PROJECT_ID": t.projectID, "DATASET_ID": t.datasetID}
}

func (t *bigQueryTarget) Close() error {
	return t.client.Close()
}

func (t *bigQueryTarget) migrationsTable() string {
	return "`" + t.projectID + "." + t.datasetID + ".schema_migrations`"
}

func (t *bigQueryTarget) Ensure(ctx context.Context) error {
	return t.exec(ctx, t.client.Query(`
		CREATE TABLE IF NOT EXISTS `+t.migrationsTable()+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

func (t *bigQueryTarget) Applied(ctx context.Context) ([]AppliedMigration, error) {
	it, err := t.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + t.migrationsTable() + `
		ORDER BY version ASC
	`).Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// Apply runs the migration and then records it. BigQuery DDL is not
// transactional, so a failure between the two leaves the migration
// unrecorded; migrations use IF NOT EXISTS to stay re-runnable.
func (t *bigQueryTarget) Apply(ctx context.Context, m Migration, appliedBy string) error {
	if err := t.exec(ctx, t.client.Query(m.SQL)); err != nil {
		return err
	}

	q := t.client.Query(`
		INSERT INTO ` + t.migrationsTable() + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	if err := t.exec(ctx, q); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

func (t *bigQueryTarget) exec(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
