package mongodb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/infra/mongodb"
)

// Mock for DataStore interface.
type mockDataStore struct {
	insertManyFunc     func(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	findFunc           func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	countDocumentsFunc func(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

func (m *mockDataStore) InsertMany(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if m.insertManyFunc != nil {
		return m.insertManyFunc(ctx, docs, opts...)
	}
	return &mongo.InsertManyResult{}, nil
}

func (m *mockDataStore) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, opts...)
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func (m *mockDataStore) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	if m.countDocumentsFunc != nil {
		return m.countDocumentsFunc(ctx, filter, opts...)
	}
	return 0, nil
}

// Mock for CollectionProvider interface.
type mockCollectionProvider struct {
	store *mockDataStore
	names []string
}

func (m *mockCollectionProvider) Collection(name string) mongodb.DataStore {
	m.names = append(m.names, name)
	return m.store
}

func sampleRecord(id string) domain.Record {
	return domain.Record{
		OriginalID: id,
		CompanyID:  1,
		SourceID:   10,
		SourceName: "ledger-api",
		FromDate:   "2024-01-01",
		ToDate:     "2024-01-31",
		Category:   "Income",
		Amount:     decimal.RequireFromString("1500.25"),
	}
}

func TestInsertBatch_Success(t *testing.T) {
	ds := &mockDataStore{
		insertManyFunc: func(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
			if len(docs) != 2 {
				t.Errorf("Expected 2 documents, got %d", len(docs))
			}
			raw, err := bson.Marshal(docs[0])
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var doc bson.M
			if err := bson.Unmarshal(raw, &doc); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if doc["_id"] != "a" {
				t.Errorf("Expected _id a, got %v", doc["_id"])
			}
			if doc["period_start"] != "2024-01-01" {
				t.Errorf("Expected period_start 2024-01-01, got %v", doc["period_start"])
			}
			if _, ok := doc["amount"].(primitive.Decimal128); !ok {
				t.Errorf("Expected Decimal128 amount, got %T", doc["amount"])
			}
			return &mongo.InsertManyResult{}, nil
		},
	}
	provider := &mockCollectionProvider{store: ds}
	store := mongodb.NewRecordStore(provider)

	n, err := store.InsertBatch(context.Background(), []domain.Record{sampleRecord("a"), sampleRecord("b")}, true)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 inserted, got %d", n)
	}
	if len(provider.names) != 1 || provider.names[0] != mongodb.RecordsCollection {
		t.Errorf("Expected records collection, got %v", provider.names)
	}
}

func duplicateError(indexes ...int) error {
	var wes []mongo.BulkWriteError
	for _, i := range indexes {
		wes = append(wes, mongo.BulkWriteError{WriteError: mongo.WriteError{Index: i, Code: 11000, Message: "E11000 duplicate key error"}})
	}
	return mongo.BulkWriteException{WriteErrors: wes}
}

func TestInsertBatch_Duplicates(t *testing.T) {
	ds := &mockDataStore{
		insertManyFunc: func(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
			return nil, duplicateError(1)
		},
	}
	store := mongodb.NewRecordStore(&mockCollectionProvider{store: ds})
	records := []domain.Record{sampleRecord("a"), sampleRecord("b"), sampleRecord("c")}

	n, err := store.InsertBatch(context.Background(), records, true)
	if err != nil {
		t.Fatalf("InsertBatch with skipDuplicates failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 inserted, got %d", n)
	}

	n, err = store.InsertBatch(context.Background(), records, false)
	if err == nil {
		t.Error("Expected error when duplicates are not skipped")
	}
	if n != 2 {
		t.Errorf("Expected partial count 2, got %d", n)
	}
}

func TestInsertBatch_OtherFailure(t *testing.T) {
	ds := &mockDataStore{
		insertManyFunc: func(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	store := mongodb.NewRecordStore(&mockCollectionProvider{store: ds})

	n, err := store.InsertBatch(context.Background(), []domain.Record{sampleRecord("a")}, true)
	if err == nil {
		t.Fatal("Expected error")
	}
	if n != 0 {
		t.Errorf("Expected 0 inserted, got %d", n)
	}
}

func TestInsertBatch_InvalidPeriod(t *testing.T) {
	store := mongodb.NewRecordStore(&mockCollectionProvider{store: &mockDataStore{}})
	r := sampleRecord("a")
	r.ToDate = "soon"

	if _, err := store.InsertBatch(context.Background(), []domain.Record{r}, true); err == nil {
		t.Error("Expected error for unparseable period")
	}
}

func TestFindExisting(t *testing.T) {
	ds := &mockDataStore{
		findFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			return mongo.NewCursorFromDocuments([]interface{}{bson.M{"_id": "b"}}, nil, nil)
		},
	}
	store := mongodb.NewRecordStore(&mockCollectionProvider{store: ds})

	found, err := store.FindExisting(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("FindExisting failed: %v", err)
	}
	if _, ok := found["b"]; !ok || len(found) != 1 {
		t.Errorf("Expected only b to exist, got %v", found)
	}
}

func TestListByCompany(t *testing.T) {
	amount, _ := primitive.ParseDecimal128("-42.5")
	ds := &mockDataStore{
		countDocumentsFunc: func(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
			q := filter.(bson.M)
			if q["company_id"] != int64(1) || q["category"] != "Expenses" {
				t.Errorf("unexpected filter %v", q)
			}
			return 7, nil
		},
		findFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			if len(opts) != 1 || opts[0].Skip == nil || *opts[0].Skip != 5 || *opts[0].Limit != 5 {
				t.Errorf("unexpected paging options")
			}
			return mongo.NewCursorFromDocuments([]interface{}{
				bson.M{
					"_id": "x", "company_id": int64(1), "source_id": int64(10), "source_name": "ledger-api",
					"from_date": "2024-02-01", "to_date": "2024-02-29", "category": "Expenses", "amount": amount,
				},
			}, nil, nil)
		},
	}
	store := mongodb.NewRecordStore(&mockCollectionProvider{store: ds})

	records, total, err := store.ListByCompany(context.Background(), 1, domain.RecordFilter{Category: "Expenses", Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("ListByCompany failed: %v", err)
	}
	if total != 7 {
		t.Errorf("Expected total 7, got %d", total)
	}
	if len(records) != 1 || records[0].OriginalID != "x" || !records[0].Amount.Equal(decimal.RequireFromString("-42.5")) {
		t.Errorf("unexpected records %+v", records)
	}
}
