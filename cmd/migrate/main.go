package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/logger"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// target is a database the runner can migrate.
type target interface {
	// Ensure creates the schema_migrations table if it doesn't exist.
	Ensure(ctx context.Context) error
	// Applied lists migrations already recorded, ordered by version.
	Applied(ctx context.Context) ([]AppliedMigration, error)
	// Apply executes a migration and records it.
	Apply(ctx context.Context, m Migration, appliedBy string) error
	// Placeholders returns the values substituted into migration SQL.
	Placeholders() map[string]string
	Close() error
}

// Pattern to match migration files: 0001_name.sql
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

var (
	driver        = flag.String("driver", "bigquery", "Target database: bigquery or postgres")
	projectID     = flag.String("project", os.Getenv("BQ_PROJECT"), "GCP project ID (bigquery)")
	datasetID     = flag.String("dataset", envOr("BQ_DATASET", "ledger"), "BigQuery dataset ID")
	databaseURL   = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (postgres)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Path to migrations directory (default migrations/<driver>)")
)

func main() {
	flag.Parse()

	log := logger.NewFromConfig(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	ctx := logger.WithContext(context.Background(), log)

	t, err := openTarget(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("driver", *driver).Msg("Failed to connect")
	}
	defer t.Close()

	dir := *migrationsDir
	if dir == "" {
		dir = filepath.Join("migrations", *driver)
	}

	applied, err := run(ctx, t, dir, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Successfully applied migrations")
	}
}

func openTarget(ctx context.Context) (target, error) {
	switch *driver {
	case "bigquery":
		if *projectID == "" {
			return nil, fmt.Errorf("-project flag (or BQ_PROJECT) is required for bigquery")
		}
		return newBigQueryTarget(ctx, *projectID, *datasetID)
	case "postgres":
		if *databaseURL == "" {
			return nil, fmt.Errorf("-database-url flag (or DATABASE_URL) is required for postgres")
		}
		return newPostgresTarget(ctx, *databaseURL)
	default:
		return nil, fmt.Errorf("unknown driver %q", *driver)
	}
}

// run applies every migration in dir that t has not recorded yet and returns
// how many were applied.
func run(ctx context.Context, t target, dir, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := t.Ensure(ctx); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(log, resolveDir(dir), t.Placeholders())
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	appliedMigrations, err := t.Applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied migrations: %w", err)
	}
	log.Info().Int("count", len(appliedMigrations)).Msg("Found already applied migrations")

	appliedByVersion := make(map[int]AppliedMigration, len(appliedMigrations))
	for _, am := range appliedMigrations {
		appliedByVersion[am.Version] = am
	}

	appliedCount := 0
	for _, m := range migrations {
		if am, ok := appliedByVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				log.Warn().Str("migration", m.Filename).Msg("Applied migration was modified since it ran")
			}
			log.Debug().Str("migration", m.Filename).Msg("[SKIP] already applied")
			continue
		}

		log.Info().Str("migration", m.Filename).Msg("[RUN]")
		if err := t.Apply(ctx, m, appliedBy); err != nil {
			return appliedCount, fmt.Errorf("apply %s: %w", m.Filename, err)
		}
		log.Info().Str("migration", m.Filename).Msg("[OK]")
		appliedCount++
	}

	return appliedCount, nil
}

// resolveDir also accepts being run from cmd/migrate.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) && !filepath.IsAbs(dir) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// readMigrations reads all migration files from dir, substituting
// {{KEY}} placeholders. Checksums are taken before substitution so the
// same migration applied to another project keeps its checksum.
func readMigrations(log zerolog.Logger, dir string, placeholders map[string]string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("version %04d used by both %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		for key, value := range placeholders {
			sql = strings.ReplaceAll(sql, "{{"+key+"}}", value)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
