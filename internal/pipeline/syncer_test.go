package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/ledgersync/internal/catalog"
	"github.com/dvloznov/ledgersync/internal/dedup"
	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/fetch"
	"github.com/dvloznov/ledgersync/internal/infra/memory"
	"github.com/dvloznov/ledgersync/internal/jobs"
	"github.com/dvloznov/ledgersync/internal/jobs/inmemory"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

const hierarchicalPayload = `{"data": {
	"Header": {"ReportName": "ProfitAndLoss", "Currency": "USD"},
	"Columns": {"Column": [
		{"ColType": "Account"},
		{"ColTitle": "Jan 2024", "ColType": "Money", "MetaData": [
			{"Name": "StartDate", "Value": "2024-01-01"}, {"Name": "EndDate", "Value": "2024-01-31"}]}
	]},
	"Rows": {"Row": [
		{"Header": {"ColData": [{"value": "Income"}]}, "Rows": {"Row": [
			{"ColData": [{"value": "Sales", "id": "4000"}, {"value": "1200"}]},
			{"ColData": [{"value": "Services", "id": "4100"}, {"value": "300"}]}
		]}}
	]}
}}`

const flatPayload = `{"data": [{
	"period_start": "2024-01-01", "period_end": "2024-01-31", "currency_id": "USD",
	"revenue": [{"name": "Product A", "value": 500,
		"line_items": [{"name": "Online", "value": 300, "account_id": "A1"}]}]
}]}`

// MockFetcher is a mock implementation of fetch.Fetcher for testing.
type MockFetcher struct {
	mu    sync.Mutex
	calls []string

	GetFunc func(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error)
}

func (m *MockFetcher) Get(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, endpoint)
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, endpoint, headers, query, timeout)
	}
	return nil, nil
}

func fetcherFor(responses map[string]string, failures map[string]error) *MockFetcher {
	return &MockFetcher{
		GetFunc: func(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error) {
			if err, ok := failures[endpoint]; ok {
				return nil, err
			}
			if body, ok := responses[endpoint]; ok {
				return []byte(body), nil
			}
			return nil, nil
		},
	}
}

// MockArchiver records archived payloads.
type MockArchiver struct {
	ArchiveFunc func(ctx context.Context, companyID, sourceID int64, contentHash string, payload []byte) (string, error)
}

func (m *MockArchiver) Archive(ctx context.Context, companyID, sourceID int64, contentHash string, payload []byte) (string, error) {
	return m.ArchiveFunc(ctx, companyID, sourceID, contentHash, payload)
}

type harness struct {
	catalog *catalog.Catalog
	jobs    *inmemory.Store
	records *memory.RecordStore
	syncer  *pipeline.Syncer
}

func newHarness(t *testing.T, companies []*domain.Company, fetcher fetch.Fetcher, archiver pipeline.PayloadArchiver) *harness {
	t.Helper()
	cat, err := catalog.New(companies)
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	h := &harness{
		catalog: cat,
		jobs:    inmemory.NewStore(),
		records: memory.NewRecordStore(),
	}
	h.syncer = pipeline.NewSyncer(pipeline.SyncerConfig{
		Companies: h.catalog,
		Jobs:      h.jobs,
		Fetcher:   fetcher,
		Persister: dedup.NewPersister(h.records),
		Archiver:  archiver,
	})
	return h
}

func (h *harness) run(t *testing.T, companyID int64) *jobs.SyncJob {
	t.Helper()
	ctx := context.Background()
	job, err := h.jobs.Create(ctx, companyID)
	if err != nil {
		t.Fatalf("Create job failed: %v", err)
	}
	_ = h.syncer.Run(ctx, job.ID, companyID)

	got, err := h.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get job failed: %v", err)
	}
	return got
}

func TestSyncer_PartialIsolation(t *testing.T) {
	companies := []*domain.Company{{
		ID:   1,
		Name: "Acme",
		Sources: []*domain.Source{
			{ID: 10, Name: "ledger", Endpoint: "https://a.example/report", Credential: "tok"},
			{ID: 11, Name: "broken", Endpoint: "https://b.example/report"},
			{ID: 12, Name: "garbled", Endpoint: "https://c.example/report"},
		},
	}}
	fetcher := fetcherFor(
		map[string]string{
			"https://a.example/report": hierarchicalPayload,
			"https://c.example/report": `{"data": "nope"}`,
		},
		map[string]error{
			"https://b.example/report": &fetch.Error{Endpoint: "https://b.example/report", StatusCode: 503, Message: "unavailable"},
		},
	)
	h := newHarness(t, companies, fetcher, nil)

	job := h.run(t, 1)

	if job.Status != jobs.JobStatusCompleted {
		t.Fatalf("Status = %s, want completed (error: %s)", job.Status, job.Error)
	}
	if job.Error != "Successfully processed 2 records from API sources" {
		t.Errorf("summary = %q", job.Error)
	}
	if job.SourceID != 12 || job.SourceName != "garbled" {
		t.Errorf("current source = %d/%s, want last attempted 12/garbled", job.SourceID, job.SourceName)
	}
	if h.records.Len() != 2 {
		t.Errorf("stored %d records, want 2", h.records.Len())
	}

	company, _ := h.catalog.FindWithSources(context.Background(), 1)
	for _, src := range company.Sources {
		synced := src.LastSync != nil
		if synced != (src.ID == 10) {
			t.Errorf("source %d LastSync set = %v", src.ID, synced)
		}
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("fetched %d sources, want 3", len(fetcher.calls))
	}
}

func TestSyncer_FetchReceivesCredentialAndQuery(t *testing.T) {
	companies := []*domain.Company{{
		ID: 1,
		Sources: []*domain.Source{{
			ID: 10, Name: "ledger", Endpoint: "https://a.example/report",
			Credential: "tok", QueryParams: map[string]string{"period": "2024"},
		}},
	}}
	fetcher := &MockFetcher{
		GetFunc: func(ctx context.Context, endpoint string, headers, query map[string]string, timeout time.Duration) ([]byte, error) {
			if headers["Authorization"] != "Bearer tok" {
				t.Errorf("Authorization = %q", headers["Authorization"])
			}
			if query["period"] != "2024" {
				t.Errorf("query = %v", query)
			}
			if timeout != pipeline.DefaultFetchTimeout {
				t.Errorf("timeout = %s, want %s", timeout, pipeline.DefaultFetchTimeout)
			}
			return []byte(hierarchicalPayload), nil
		},
	}
	h := newHarness(t, companies, fetcher, nil)

	if job := h.run(t, 1); job.Status != jobs.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", job.Status)
	}
}

func TestSyncer_Idempotent(t *testing.T) {
	companies := []*domain.Company{{
		ID:      1,
		Sources: []*domain.Source{{ID: 10, Name: "ledger", Endpoint: "https://a.example/report"}},
	}}
	h := newHarness(t, companies, fetcherFor(map[string]string{"https://a.example/report": hierarchicalPayload}, nil), nil)

	first := h.run(t, 1)
	second := h.run(t, 1)

	if first.Error != "Successfully processed 2 records from API sources" {
		t.Errorf("first summary = %q", first.Error)
	}
	if second.Error != "Successfully processed 0 records from API sources" {
		t.Errorf("second summary = %q", second.Error)
	}
	if h.records.Len() != 2 {
		t.Errorf("stored %d records, want 2", h.records.Len())
	}
}

func TestSyncer_FatalConditions(t *testing.T) {
	companies := []*domain.Company{{ID: 3, Name: "Empty"}}

	tests := []struct {
		name      string
		companyID int64
		wantMsg   string
	}{
		{name: "unknown company", companyID: 99, wantMsg: "No configuration found for company 99"},
		{name: "no sources", companyID: 3, wantMsg: "No API data sources found for company 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &MockFetcher{}
			h := newHarness(t, companies, fetcher, nil)

			job := h.run(t, tt.companyID)
			if job.Status != jobs.JobStatusFailed {
				t.Fatalf("Status = %s, want failed", job.Status)
			}
			if job.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", job.Error, tt.wantMsg)
			}
			if job.CompletedAt == nil {
				t.Error("Expected CompletedAt on a failed job")
			}
			if len(fetcher.calls) != 0 {
				t.Errorf("fetched %d sources, want none", len(fetcher.calls))
			}
		})
	}
}

func TestSyncer_EmptyPayloadSkipped(t *testing.T) {
	companies := []*domain.Company{{
		ID: 2,
		Sources: []*domain.Source{
			{ID: 20, Name: "silent", Endpoint: "https://silent.example"},
			{ID: 21, Name: "flat", Endpoint: "https://flat.example"},
		},
	}}
	h := newHarness(t, companies, fetcherFor(map[string]string{"https://flat.example": flatPayload}, nil), nil)

	job := h.run(t, 2)
	if job.Status != jobs.JobStatusCompleted {
		t.Fatalf("Status = %s, want completed", job.Status)
	}
	if !strings.Contains(job.Error, "processed 2 records") {
		t.Errorf("summary = %q", job.Error)
	}

	company, _ := h.catalog.FindWithSources(context.Background(), 2)
	if company.Sources[0].LastSync != nil {
		t.Error("Expected silent source not to be marked synced")
	}
}

func TestSyncer_RecordsPathAndArchive(t *testing.T) {
	wrapped := `{"meta": {"page": 1}, "result": {"entries": ` + strings.TrimSuffix(strings.TrimPrefix(flatPayload, `{"data": `), "}") + `}}`
	companies := []*domain.Company{{
		ID: 5,
		Sources: []*domain.Source{{
			ID: 50, Name: "wrapped", Endpoint: "https://wrapped.example",
			Format: domain.FormatFlat, RecordsPath: "$.result.entries",
		}},
	}}

	var archivedHash string
	archiver := &MockArchiver{
		ArchiveFunc: func(ctx context.Context, companyID, sourceID int64, contentHash string, payload []byte) (string, error) {
			if companyID != 5 || sourceID != 50 {
				t.Errorf("Archive(%d, %d)", companyID, sourceID)
			}
			archivedHash = contentHash
			return "", errors.New("bucket unavailable")
		},
	}
	h := newHarness(t, companies, fetcherFor(map[string]string{"https://wrapped.example": wrapped}, nil), archiver)

	job := h.run(t, 5)
	if job.Error != "Successfully processed 2 records from API sources" {
		t.Errorf("summary = %q", job.Error)
	}
	if len(archivedHash) != 32 {
		t.Errorf("archived content hash = %q, want md5 hex", archivedHash)
	}
}

func TestSelectPayload(t *testing.T) {
	out, err := pipeline.SelectPayload([]byte(`{"a": {"b": [1, 2]}}`), "$.a.b")
	if err != nil {
		t.Fatalf("SelectPayload failed: %v", err)
	}
	if string(out) != `{"data":[1,2]}` {
		t.Errorf("SelectPayload = %s", out)
	}

	if _, err := pipeline.SelectPayload([]byte(`{"a": 1}`), "$.missing"); err == nil {
		t.Error("Expected error for an unmatched path")
	}
}
