package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// RecordStore implements pipeline.RecordRepository over the records table.
type RecordStore struct {
	db DB
}

// NewRecordStore creates a RecordStore over db.
func NewRecordStore(db DB) *RecordStore {
	return &RecordStore{db: db}
}

const insertRecordSQL = `
	INSERT INTO records (
		original_id, company_id, source_id, source_name, from_date, to_date,
		category, subcategory, line_item_name, account_id, amount, metadata
	) VALUES (
		$1, $2, $3, $4, $5::date, $6::date,
		$7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11::numeric, $12::jsonb
	)`

// FindExisting implements dedup.RecordStore.
func (s *RecordStore) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.db.Query(ctx, `SELECT original_id FROM records WHERE original_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("FindExisting: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("FindExisting: scan: %w", err)
	}
	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

// InsertBatch implements dedup.RecordStore. All statements go out in one
// pgx batch; with skipDuplicates a conflicting original_id is skipped
// instead of failing the batch. Any failing statement rolls back the whole
// batch and InsertBatch reports 0 rows.
func (s *RecordStore) InsertBatch(ctx context.Context, records []domain.Record, skipDuplicates bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := insertRecordSQL
	if skipDuplicates {
		query += ` ON CONFLICT (original_id) DO NOTHING`
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		args, err := recordArgs(r)
		if err != nil {
			return 0, fmt.Errorf("InsertBatch: %w", err)
		}
		batch.Queue(query, args...)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range records {
		tag, err := br.Exec()
		if err != nil {
			// The batch runs as one implicit transaction, so nothing was kept.
			return 0, fmt.Errorf("InsertBatch: record %s: %w", records[i].OriginalID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if inserted < len(records) {
		log := logger.FromContext(ctx)
		log.Debug().
			Int("batch", len(records)).
			Int("inserted", inserted).
			Msg("Skipped rows already stored")
	}
	return inserted, nil
}

// recordArgs maps r onto the positional parameters of insertRecordSQL.
func recordArgs(r domain.Record) ([]any, error) {
	from, to, err := r.Period()
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.OriginalID, err)
	}
	encoded, err := domain.EncodeMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", r.OriginalID, err)
	}
	var metadata *string
	if encoded != "" {
		metadata = &encoded
	}
	return []any{
		r.OriginalID, r.CompanyID, r.SourceID, r.SourceName, from.String(), to.String(),
		r.Category, r.Subcategory, r.LineItemName, r.AccountID, r.Amount.String(), metadata,
	}, nil
}

// ListByCompany implements pipeline.RecordReader.
func (s *RecordStore) ListByCompany(ctx context.Context, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error) {
	filter = filter.Normalize()
	where, args := recordConditions(companyID, filter)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: count: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	rows, err := s.db.Query(ctx, `
		SELECT original_id, company_id, source_id, source_name,
			from_date::text, to_date::text, category,
			COALESCE(subcategory, ''), COALESCE(line_item_name, ''), COALESCE(account_id, ''),
			amount::text, metadata
		FROM records
		WHERE `+where+fmt.Sprintf(`
		ORDER BY from_date, created_at, original_id
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCompany: scan: %w", err)
	}
	return records, total, nil
}

func scanRecord(row pgx.CollectableRow) (domain.Record, error) {
	var (
		r        domain.Record
		amount   string
		metadata []byte
	)
	if err := row.Scan(&r.OriginalID, &r.CompanyID, &r.SourceID, &r.SourceName,
		&r.FromDate, &r.ToDate, &r.Category, &r.Subcategory, &r.LineItemName, &r.AccountID,
		&amount, &metadata); err != nil {
		return domain.Record{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Record{}, fmt.Errorf("record %s: amount: %w", r.OriginalID, err)
	}
	r.Amount = d
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return domain.Record{}, fmt.Errorf("record %s: metadata: %w", r.OriginalID, err)
		}
	}
	return r, nil
}

// recordConditions builds the WHERE clause and positional arguments for a
// company's records.
func recordConditions(companyID int64, filter domain.RecordFilter) (string, []any) {
	args := []any{companyID}
	conds := []string{"company_id = $1"}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.StartDate != nil {
		add("from_date >= $%d::date", filter.StartDate.String())
	}
	if filter.EndDate != nil {
		add("to_date <= $%d::date", filter.EndDate.String())
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.SourceID != 0 {
		add("source_id = $%d", filter.SourceID)
	}
	if filter.SourceName != "" {
		add("source_name = $%d", filter.SourceName)
	}
	return strings.Join(conds, " AND "), args
}

var _ pipeline.RecordRepository = (*RecordStore)(nil)
