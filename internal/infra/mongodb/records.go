package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

const duplicateKeyCode = 11000

// recordDoc is the stored form of a record. The fingerprint is the _id.
type recordDoc struct {
	OriginalID string `bson:"_id"`
	CompanyID  int64  `bson:"company_id"`
	SourceID   int64  `bson:"source_id"`
	SourceName string `bson:"source_name"`

	// FromDate and ToDate keep the upstream literals; PeriodStart and
	// PeriodEnd hold their calendar dates for range queries.
	FromDate    string `bson:"from_date"`
	ToDate      string `bson:"to_date"`
	PeriodStart string `bson:"period_start"`
	PeriodEnd   string `bson:"period_end"`

	Category     string `bson:"category"`
	Subcategory  string `bson:"subcategory,omitempty"`
	LineItemName string `bson:"line_item_name,omitempty"`
	AccountID    string `bson:"account_id,omitempty"`

	Amount   primitive.Decimal128 `bson:"amount"`
	Metadata map[string]any       `bson:"metadata,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
}

func toDoc(r domain.Record, now time.Time) (recordDoc, error) {
	from, to, err := r.Period()
	if err != nil {
		return recordDoc{}, fmt.Errorf("record %s: %w", r.OriginalID, err)
	}
	amount, err := primitive.ParseDecimal128(r.Amount.String())
	if err != nil {
		return recordDoc{}, fmt.Errorf("record %s: amount: %w", r.OriginalID, err)
	}
	return recordDoc{
		OriginalID:   r.OriginalID,
		CompanyID:    r.CompanyID,
		SourceID:     r.SourceID,
		SourceName:   r.SourceName,
		FromDate:     r.FromDate,
		ToDate:       r.ToDate,
		PeriodStart:  from.String(),
		PeriodEnd:    to.String(),
		Category:     r.Category,
		Subcategory:  r.Subcategory,
		LineItemName: r.LineItemName,
		AccountID:    r.AccountID,
		Amount:       amount,
		Metadata:     r.Metadata,
		CreatedAt:    now,
	}, nil
}

func (d *recordDoc) toRecord() (domain.Record, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return domain.Record{}, fmt.Errorf("record %s: amount: %w", d.OriginalID, err)
	}
	return domain.Record{
		OriginalID:   d.OriginalID,
		CompanyID:    d.CompanyID,
		SourceID:     d.SourceID,
		SourceName:   d.SourceName,
		FromDate:     d.FromDate,
		ToDate:       d.ToDate,
		Category:     d.Category,
		Subcategory:  d.Subcategory,
		LineItemName: d.LineItemName,
		AccountID:    d.AccountID,
		Amount:       amount,
		Metadata:     d.Metadata,
	}, nil
}

// RecordStore implements pipeline.RecordRepository for MongoDB.
type RecordStore struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(provider CollectionProvider) *RecordStore {
	return &RecordStore{provider: provider, now: time.Now}
}

// FindExisting implements dedup.RecordStore.
func (s *RecordStore) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	cur, err := s.provider.Collection(RecordsCollection).Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("FindExisting: %w", err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("FindExisting: decode: %w", err)
	}
	for _, row := range rows {
		found[row.ID] = struct{}{}
	}
	return found, nil
}

// InsertBatch implements dedup.RecordStore. The insert is unordered, so one
// duplicate does not stop the rest of the batch.
func (s *RecordStore) InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		doc, err := toDoc(r, now)
		if err != nil {
			return 0, fmt.Errorf("InsertBatch: %w", err)
		}
		docs = append(docs, doc)
	}

	_, err := s.provider.Collection(RecordsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, fmt.Errorf("InsertBatch: %w", err)
	}

	inserted := len(docs) - len(bwe.WriteErrors)
	duplicates := 0
	for _, we := range bwe.WriteErrors {
		if we.Code == duplicateKeyCode {
			duplicates++
		}
	}
	if duplicates < len(bwe.WriteErrors) || !skipDuplicates {
		return inserted, fmt.Errorf("InsertBatch: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("batch", len(docs)).
		Int("duplicates", duplicates).
		Msg("Skipped documents already stored")
	return inserted, nil
}

// ListByCompany implements pipeline.RecordReader.
func (s *RecordStore) ListByCompany(ctx context.Context, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error) {
	filter = filter.Normalize()
	query := recordQuery(companyID, filter)
	coll := s.provider.Collection(RecordsCollection)

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: count: %w", err)
	}

	cur, err := coll.Find(ctx, query, options.Find().
		SetSort(bson.D{{Key: "period_start", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: find: %w", err)
	}

	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: decode: %w", err)
	}

	records := make([]domain.Record, 0, len(docs))
	for i := range docs {
		r, err := docs[i].toRecord()
		if err != nil {
			return nil, 0, fmt.Errorf("ListByCompany: %w", err)
		}
		records = append(records, r)
	}
	return records, int(total), nil
}

// recordQuery builds the find filter for a company's records.
func recordQuery(companyID int64, filter domain.RecordFilter) bson.M {
	q := bson.M{"company_id": companyID}
	if filter.StartDate != nil {
		q["period_start"] = bson.M{"$gte": filter.StartDate.String()}
	}
	if filter.EndDate != nil {
		q["period_end"] = bson.M{"$lte": filter.EndDate.String()}
	}
	if filter.Category != "" {
		q["category"] = filter.Category
	}
	if filter.SourceID != 0 {
		q["source_id"] = filter.SourceID
	}
	if filter.SourceName != "" {
		q["source_name"] = filter.SourceName
	}
	return q
}

var _ pipeline.RecordRepository = (*RecordStore)(nil)
