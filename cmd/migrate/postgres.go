package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresTarget struct {
	pool *pgxpool.Pool
}

func newPostgresTarget(ctx context.Context, databaseURL string) (*postgresTarget, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &postgresTarget{pool: pool}, nil
}

func (t *postgresTarget) Placeholders() map[string]string {
	return nil
}

func (t *postgresTarget) Close() error {
	t.pool.Close()
	return nil
}

func (t *postgresTarget) Ensure(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum    TEXT,
			applied_by  TEXT
		)
	`)
	return err
}

func (t *postgresTarget) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

// Apply runs the migration and records it in one transaction.
func (t *postgresTarget) Apply(ctx context.Context, m Migration, appliedBy string) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name, checksum, applied_by) VALUES ($1, $2, $3, $4)`,
			m.Version, m.Name, m.Checksum, appliedBy)
		if err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		return nil
	})
}
