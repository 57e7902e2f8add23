// Package config loads service settings from the environment.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ledgersync/internal/logger"
)

// Backend names a record store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBigQuery Backend = "bigquery"
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

const (
	defaultPort          = "8080"
	defaultBackend       = BackendMemory
	defaultDataset       = "ledger"
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "ledger"
	defaultCatalogPath   = "config/catalog.yaml"
	defaultFetchTimeout  = 30 * time.Second
	defaultQueueWorkers  = 5
	defaultQueueBuffer   = 100
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultSampleDataDir = "data/sample"

	envPort          = "PORT"
	envStoreBackend  = "STORE_BACKEND"
	envBQProject     = "BQ_PROJECT"
	envBQDataset     = "BQ_DATASET"
	envMongoURI      = "MONGO_URI"
	envMongoDatabase = "MONGO_DATABASE"
	envDatabaseURL   = "DATABASE_URL"
	envCatalogPath   = "CATALOG_PATH"
	envArchiveBucket = "ARCHIVE_BUCKET"
	envFetchTimeout  = "FETCH_TIMEOUT"
	envQueueWorkers  = "QUEUE_WORKERS"
	envQueueBuffer   = "QUEUE_BUFFER"
	envLogLevel      = "LOG_LEVEL"
	envLogFormat     = "LOG_FORMAT"
	envSampleDataDir = "SAMPLE_DATA_DIR"
)

// Config holds the settings shared by the commands.
type Config struct {
	Port    string
	Backend Backend

	BQProject string
	BQDataset string

	MongoURI      string
	MongoDatabase string

	DatabaseURL string

	// CatalogPath is the YAML company catalog used by every backend but
	// postgres, which keeps companies in its own tables.
	CatalogPath string

	// ArchiveBucket enables payload archiving when set.
	ArchiveBucket string

	FetchTimeout time.Duration
	QueueWorkers int
	QueueBuffer  int

	LogLevel  string
	LogFormat string

	SampleDataDir string
}

// Load reads the configuration through getenv (usually os.Getenv). Invalid
// numeric values fall back to their defaults with a warning.
func Load(ctx context.Context, getenv func(string) string) (*Config, error) {
	log := logger.FromContext(ctx)

	str := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		log.Debug().Str("key", key).Str("default", def).Msg("Using default value")
		return def
	}
	positiveInt := func(key string, def int) int {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			log.Debug().Str("key", key).Int("default", def).Msg("Using default value")
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Warn().Str("key", key).Str("value", raw).Int("default", def).Msg("Invalid value, using default")
			return def
		}
		return n
	}

	cfg := &Config{
		Port:          str(envPort, defaultPort),
		Backend:       Backend(strings.ToLower(str(envStoreBackend, string(defaultBackend)))),
		BQProject:     strings.TrimSpace(getenv(envBQProject)),
		BQDataset:     str(envBQDataset, defaultDataset),
		MongoURI:      str(envMongoURI, defaultMongoURI),
		MongoDatabase: str(envMongoDatabase, defaultMongoDatabase),
		DatabaseURL:   strings.TrimSpace(getenv(envDatabaseURL)),
		CatalogPath:   str(envCatalogPath, defaultCatalogPath),
		ArchiveBucket: strings.TrimSpace(getenv(envArchiveBucket)),
		FetchTimeout:  defaultFetchTimeout,
		QueueWorkers:  positiveInt(envQueueWorkers, defaultQueueWorkers),
		QueueBuffer:   positiveInt(envQueueBuffer, defaultQueueBuffer),
		LogLevel:      str(envLogLevel, defaultLogLevel),
		LogFormat:     str(envLogFormat, defaultLogFormat),
		SampleDataDir: str(envSampleDataDir, defaultSampleDataDir),
	}

	if raw := strings.TrimSpace(getenv(envFetchTimeout)); raw != "" {
		if d := parseTimeout(raw, 0); d > 0 {
			cfg.FetchTimeout = d
		} else {
			log.Warn().Str("key", envFetchTimeout).Str("value", raw).Msg("Invalid timeout, using default")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration ("45s") or a number of seconds ("45").
func parseTimeout(raw string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendMongo:
	case BackendBigQuery:
		if c.BQProject == "" {
			return fmt.Errorf("config: %s is required for the %s backend", envBQProject, c.Backend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: %s is required for the %s backend", envDatabaseURL, c.Backend)
		}
	default:
		return fmt.Errorf("config: unknown %s %q", envStoreBackend, c.Backend)
	}
	return nil
}
