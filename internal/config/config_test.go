package config

import (
	"context"
	"testing"
	"time"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), env(nil))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", cfg.FetchTimeout)
	}
	if cfg.QueueWorkers != 5 || cfg.QueueBuffer != 100 {
		t.Errorf("queue = %d/%d, want 5/100", cfg.QueueWorkers, cfg.QueueBuffer)
	}
	if cfg.CatalogPath != "config/catalog.yaml" {
		t.Errorf("CatalogPath = %q", cfg.CatalogPath)
	}
	if cfg.ArchiveBucket != "" {
		t.Errorf("ArchiveBucket = %q, want empty", cfg.ArchiveBucket)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(context.Background(), env(map[string]string{
		"PORT":           "9090",
		"STORE_BACKEND":  "BigQuery",
		"BQ_PROJECT":     "acme",
		"BQ_DATASET":     "finance",
		"FETCH_TIMEOUT":  "45",
		"QUEUE_WORKERS":  "2",
		"QUEUE_BUFFER":   "-1",
		"ARCHIVE_BUCKET": "acme-payloads",
	}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" || cfg.Backend != BackendBigQuery || cfg.BQProject != "acme" || cfg.BQDataset != "finance" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.FetchTimeout != 45*time.Second {
		t.Errorf("FetchTimeout = %v, want 45s", cfg.FetchTimeout)
	}
	if cfg.QueueWorkers != 2 {
		t.Errorf("QueueWorkers = %d, want 2", cfg.QueueWorkers)
	}
	if cfg.QueueBuffer != 100 {
		t.Errorf("QueueBuffer = %d, want default for invalid value", cfg.QueueBuffer)
	}
	if cfg.ArchiveBucket != "acme-payloads" {
		t.Errorf("ArchiveBucket = %q", cfg.ArchiveBucket)
	}
}

func TestLoad_BackendRequirements(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"bigquery without project", map[string]string{"STORE_BACKEND": "bigquery"}, true},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}, true},
		{"postgres with url", map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/ledger"}, false},
		{"mongo", map[string]string{"STORE_BACKEND": "mongo"}, false},
		{"unknown", map[string]string{"STORE_BACKEND": "sqlite"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), env(tt.env))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"15", 15 * time.Second},
		{"0", 30 * time.Second},
		{"soon", 30 * time.Second},
	}

	for _, tt := range tests {
		if got := parseTimeout(tt.raw, 30*time.Second); got != tt.want {
			t.Errorf("parseTimeout(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
