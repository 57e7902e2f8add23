package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgersync/internal/domain"
)

// fakeStore keeps records keyed by OriginalID and records every call.
type fakeStore struct {
	rows        map[string]domain.Record
	lookupSizes []int
	batchSizes  []int

	InsertBatchFunc func(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]domain.Record)}
}

func (s *fakeStore) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	s.lookupSizes = append(s.lookupSizes, len(ids))
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (s *fakeStore) InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
	s.batchSizes = append(s.batchSizes, len(records))
	if s.InsertBatchFunc != nil {
		return s.InsertBatchFunc(ctx, records, skipDuplicates)
	}
	n := 0
	for _, r := range records {
		if _, ok := s.rows[r.OriginalID]; ok {
			if !skipDuplicates {
				return n, fmt.Errorf("duplicate %s", r.OriginalID)
			}
			continue
		}
		s.rows[r.OriginalID] = r
		n++
	}
	return n, nil
}

func sampleRecord() domain.Record {
	return domain.Record{
		CompanyID:    1,
		SourceID:     10,
		SourceName:   "ledger-api",
		FromDate:     "2024-01-01",
		ToDate:       "2024-01-31",
		Category:     "Income",
		Subcategory:  "Sales",
		LineItemName: "Sales",
		AccountID:    "4000",
		Amount:       decimal.RequireFromString("250.50"),
		Metadata:     map[string]any{"depth": 1, "path": "Income > Sales"},
	}
}

func TestFingerprint_IgnoresProvenance(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Metadata = map[string]any{"depth": 7, "colTitle": "Jan"}
	b.SourceName = "renamed"
	b.OriginalID = "stale"

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Expected equal fingerprints for records differing only in provenance")
	}
	if got := Fingerprint(a); len(got) != 32 {
		t.Errorf("Expected 32 hex chars, got %q", got)
	}
}

func TestFingerprint_IdentityFieldsMatter(t *testing.T) {
	base := Fingerprint(sampleRecord())

	tests := []struct {
		name   string
		mutate func(r *domain.Record)
	}{
		{name: "amount", mutate: func(r *domain.Record) { r.Amount = decimal.NewFromInt(251) }},
		{name: "category", mutate: func(r *domain.Record) { r.Category = "Expenses" }},
		{name: "subcategory", mutate: func(r *domain.Record) { r.Subcategory = "" }},
		{name: "line item", mutate: func(r *domain.Record) { r.LineItemName = "Other" }},
		{name: "account", mutate: func(r *domain.Record) { r.AccountID = "4001" }},
		{name: "source", mutate: func(r *domain.Record) { r.SourceID = 11 }},
		{name: "company", mutate: func(r *domain.Record) { r.CompanyID = 2 }},
		{name: "from date", mutate: func(r *domain.Record) { r.FromDate = "2024-01-02" }},
		{name: "to date literal", mutate: func(r *domain.Record) { r.ToDate = "2024-01-31T00:00:00Z" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecord()
			tt.mutate(&r)
			if Fingerprint(r) == base {
				t.Errorf("Expected fingerprint to change when %s changes", tt.name)
			}
		})
	}
}

func TestPersistNew_Idempotent(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store)

	records := []domain.Record{sampleRecord()}
	second := sampleRecord()
	second.Category = "Expenses"
	records = append(records, second)

	n, err := p.PersistNew(context.Background(), records)
	if err != nil {
		t.Fatalf("first PersistNew failed: %v", err)
	}
	if n != 2 {
		t.Errorf("first run inserted %d, want 2", n)
	}

	n, err = p.PersistNew(context.Background(), records)
	if err != nil {
		t.Fatalf("second PersistNew failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second run inserted %d, want 0", n)
	}
	if len(store.rows) != 2 {
		t.Errorf("store holds %d rows, want 2", len(store.rows))
	}
}

func TestPersistNew_DropsZeroAndRepeats(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store)

	zero := sampleRecord()
	zero.Amount = decimal.Zero
	repeat := sampleRecord()
	repeat.Metadata = map[string]any{"depth": 3}

	n, err := p.PersistNew(context.Background(), []domain.Record{zero, sampleRecord(), repeat})
	if err != nil {
		t.Fatalf("PersistNew failed: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d, want 1", n)
	}
	for id, r := range store.rows {
		if r.Amount.IsZero() {
			t.Errorf("zero amount stored under %s", id)
		}
		if r.OriginalID != id || id != Fingerprint(r) {
			t.Errorf("OriginalID %q does not match fingerprint", r.OriginalID)
		}
	}
}

func TestPersistNew_Batches(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store)

	var records []domain.Record
	for i := 0; i < 250; i++ {
		r := sampleRecord()
		r.Amount = decimal.NewFromInt(int64(i + 1))
		records = append(records, r)
	}

	n, err := p.PersistNew(context.Background(), records)
	if err != nil {
		t.Fatalf("PersistNew failed: %v", err)
	}
	if n != 250 {
		t.Errorf("inserted %d, want 250", n)
	}
	want := []int{100, 100, 50}
	if fmt.Sprint(store.batchSizes) != fmt.Sprint(want) {
		t.Errorf("batch sizes = %v, want %v", store.batchSizes, want)
	}
}

func TestPersistNew_InsertFailure(t *testing.T) {
	store := newFakeStore()
	calls := 0
	store.InsertBatchFunc = func(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("connection reset")
		}
		return len(records), nil
	}
	p := NewPersister(store)

	var records []domain.Record
	for i := 0; i < 150; i++ {
		r := sampleRecord()
		r.Amount = decimal.NewFromInt(int64(i + 1))
		records = append(records, r)
	}

	n, err := p.PersistNew(context.Background(), records)
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("Expected *PersistenceError, got %v", err)
	}
	if n != 100 {
		t.Errorf("inserted %d before failure, want 100", n)
	}
}

func TestPersistNew_Empty(t *testing.T) {
	store := newFakeStore()
	n, err := NewPersister(store).PersistNew(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("PersistNew(nil) = %d, %v; want 0, nil", n, err)
	}
	if len(store.lookupSizes) != 0 {
		t.Error("Expected no store lookups for empty input")
	}
}
