package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
)

const recordsTable = "records"

// FindExistingRecordsWithClient returns the subset of ids present in the
// records table.
func FindExistingRecordsWithClient(ctx context.Context, client *bigquery.Client, table string, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	q := client.Query(`
		SELECT original_id
		FROM ` + "`" + table + "`" + `
		WHERE original_id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindExistingRecords: query read: %w", err)
	}

	for {
		var row struct {
			OriginalID string `bigquery:"original_id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindExistingRecords: iter next: %w", err)
		}
		found[row.OriginalID] = struct{}{}
	}

	return found, nil
}

// InsertRecordsWithClient merges records into the records table keyed by
// original_id and returns the number of rows inserted. Rows whose
// original_id is already stored are skipped; with skipDuplicates false a
// skipped row is reported as an error after the statement committed.
func InsertRecordsWithClient(ctx context.Context, client *bigquery.Client, table string, records []domain.Record, skipDuplicates bool) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	params := make([]recordParam, 0, len(records))
	for _, r := range records {
		p, err := toRecordParam(r)
		if err != nil {
			return 0, fmt.Errorf("InsertRecords: %w", err)
		}
		params = append(params, p)
	}

	// DML instead of the streaming inserter keeps rows visible to the
	// existence check immediately.
	q := client.Query(`
		MERGE ` + "`" + table + "`" + ` T
		USING (
			SELECT * FROM UNNEST(@rows)
			WHERE TRUE
			QUALIFY ROW_NUMBER() OVER (PARTITION BY original_id) = 1
		) S
		ON T.original_id = S.original_id
		WHEN NOT MATCHED THEN
			INSERT (
				original_id, company_id, source_id, source_name,
				from_date, to_date, category, subcategory,
				line_item_name, account_id, amount, metadata, created_ts
			)
			VALUES (
				S.original_id, S.company_id, S.source_id, S.source_name,
				S.from_date, S.to_date, S.category, NULLIF(S.subcategory, ''),
				NULLIF(S.line_item_name, ''), NULLIF(S.account_id, ''), S.amount,
				SAFE.PARSE_JSON(NULLIF(S.metadata, '')), CURRENT_TIMESTAMP()
			)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "rows", Value: params},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("InsertRecords: %w", err)
	}

	inserted := int(affected)
	if inserted < len(records) {
		log := logger.FromContext(ctx)
		log.Debug().
			Int("batch", len(records)).
			Int("inserted", inserted).
			Msg("Merge skipped rows already stored")
		if !skipDuplicates {
			return inserted, fmt.Errorf("InsertRecords: %d duplicate rows", len(records)-inserted)
		}
	}

	return inserted, nil
}

// ListRecordsWithClient returns one page of a company's records ordered by
// from_date, with the total number of matching rows.
func ListRecordsWithClient(ctx context.Context, client *bigquery.Client, table string, companyID int64, filter domain.RecordFilter) ([]domain.Record, int, error) {
	filter = filter.Normalize()
	where, params := recordConditions(companyID, filter)

	countQ := client.Query(`SELECT COUNT(*) AS total FROM ` + "`" + table + "`" + ` WHERE ` + where)
	countQ.Parameters = params

	it, err := countQ.Read(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListRecords: count read: %w", err)
	}
	var count struct {
		Total int64 `bigquery:"total"`
	}
	if err := it.Next(&count); err != nil {
		return nil, 0, fmt.Errorf("ListRecords: count next: %w", err)
	}

	q := client.Query(`
		SELECT
			original_id, company_id, source_id, source_name,
			from_date, to_date, category, subcategory,
			line_item_name, account_id, amount, metadata, created_ts
		FROM ` + "`" + table + "`" + `
		WHERE ` + where + `
		ORDER BY from_date, created_ts, original_id
		LIMIT @limit OFFSET @offset
	`)
	q.Parameters = append(params,
		bigquery.QueryParameter{Name: "limit", Value: filter.Limit},
		bigquery.QueryParameter{Name: "offset", Value: filter.Offset()},
	)

	it, err = q.Read(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListRecords: query read: %w", err)
	}

	var records []domain.Record
	for {
		var row RecordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("ListRecords: iter next: %w", err)
		}
		r, err := row.toRecord()
		if err != nil {
			return nil, 0, fmt.Errorf("ListRecords: %w", err)
		}
		records = append(records, r)
	}

	return records, int(count.Total), nil
}

// recordConditions builds the WHERE clause and parameters for filter.
func recordConditions(companyID int64, filter domain.RecordFilter) (string, []bigquery.QueryParameter) {
	conds := []string{"company_id = @company_id"}
	params := []bigquery.QueryParameter{{Name: "company_id", Value: companyID}}

	if filter.StartDate != nil {
		conds = append(conds, "from_date >= @start_date")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: *filter.StartDate})
	}
	if filter.EndDate != nil {
		conds = append(conds, "to_date <= @end_date")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: *filter.EndDate})
	}
	if filter.Category != "" {
		conds = append(conds, "category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: filter.Category})
	}
	if filter.SourceID != 0 {
		conds = append(conds, "source_id = @source_id")
		params = append(params, bigquery.QueryParameter{Name: "source_id", Value: filter.SourceID})
	}
	if filter.SourceName != "" {
		conds = append(conds, "source_name = @source_name")
		params = append(params, bigquery.QueryParameter{Name: "source_name", Value: filter.SourceName})
	}

	return strings.Join(conds, " AND "), params
}
