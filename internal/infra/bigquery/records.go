package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgersync/internal/domain"
)

// RecordRow is a row of the records table.
type RecordRow struct {
	OriginalID string `bigquery:"original_id"` // REQUIRED, unique by MERGE
	CompanyID  int64  `bigquery:"company_id"`  // REQUIRED
	SourceID   int64  `bigquery:"source_id"`   // REQUIRED
	SourceName string `bigquery:"source_name"` // REQUIRED

	FromDate civil.Date `bigquery:"from_date"` // REQUIRED
	ToDate   civil.Date `bigquery:"to_date"`   // REQUIRED

	Category     string              `bigquery:"category"`       // REQUIRED
	Subcategory  bigquery.NullString `bigquery:"subcategory"`    // NULLABLE
	LineItemName bigquery.NullString `bigquery:"line_item_name"` // NULLABLE
	AccountID    bigquery.NullString `bigquery:"account_id"`     // NULLABLE

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	Metadata  bigquery.NullJSON `bigquery:"metadata"`   // NULLABLE JSON
	CreatedTS time.Time         `bigquery:"created_ts"` // REQUIRED
}

// recordParam is the element type of the @rows array parameter. Optional
// strings are sent empty and turned into NULL by the statement.
type recordParam struct {
	OriginalID   string     `bigquery:"original_id"`
	CompanyID    int64      `bigquery:"company_id"`
	SourceID     int64      `bigquery:"source_id"`
	SourceName   string     `bigquery:"source_name"`
	FromDate     civil.Date `bigquery:"from_date"`
	ToDate       civil.Date `bigquery:"to_date"`
	Category     string     `bigquery:"category"`
	Subcategory  string     `bigquery:"subcategory"`
	LineItemName string     `bigquery:"line_item_name"`
	AccountID    string     `bigquery:"account_id"`
	Amount       *big.Rat   `bigquery:"amount"`
	Metadata     string     `bigquery:"metadata"`
}

func toRecordParam(r domain.Record) (recordParam, error) {
	from, to, err := r.Period()
	if err != nil {
		return recordParam{}, fmt.Errorf("record %s: %w", r.OriginalID, err)
	}
	metadata, err := domain.EncodeMetadata(r.Metadata)
	if err != nil {
		return recordParam{}, fmt.Errorf("record %s: %w", r.OriginalID, err)
	}
	return recordParam{
		OriginalID:   r.OriginalID,
		CompanyID:    r.CompanyID,
		SourceID:     r.SourceID,
		SourceName:   r.SourceName,
		FromDate:     from,
		ToDate:       to,
		Category:     r.Category,
		Subcategory:  r.Subcategory,
		LineItemName: r.LineItemName,
		AccountID:    r.AccountID,
		Amount:       r.Amount.Rat(),
		Metadata:     metadata,
	}, nil
}

// toRecord converts a stored row back into a domain record. Period
// boundaries come back as plain YYYY-MM-DD dates.
func (row *RecordRow) toRecord() (domain.Record, error) {
	r := domain.Record{
		OriginalID:   row.OriginalID,
		CompanyID:    row.CompanyID,
		SourceID:     row.SourceID,
		SourceName:   row.SourceName,
		FromDate:     row.FromDate.String(),
		ToDate:       row.ToDate.String(),
		Category:     row.Category,
		Subcategory:  row.Subcategory.StringVal,
		LineItemName: row.LineItemName.StringVal,
		AccountID:    row.AccountID.StringVal,
	}
	if row.Amount != nil {
		amount, err := decimal.NewFromString(row.Amount.FloatString(9))
		if err != nil {
			return domain.Record{}, fmt.Errorf("record %s: amount: %w", row.OriginalID, err)
		}
		r.Amount = amount
	}
	if row.Metadata.Valid && row.Metadata.JSONVal != "" {
		if err := json.Unmarshal([]byte(row.Metadata.JSONVal), &r.Metadata); err != nil {
			return domain.Record{}, fmt.Errorf("record %s: metadata: %w", row.OriginalID, err)
		}
	}
	return r, nil
}
