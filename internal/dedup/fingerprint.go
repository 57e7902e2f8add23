// Package dedup assigns content fingerprints to records and persists only the
// records a store has not seen before.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/dvloznov/ledgersync/internal/domain"
)

// identity is the subset of a record that defines the business fact.
// Field order is part of the fingerprint and must not change.
type identity struct {
	Amount       json.Number `json:"amount"`
	Category     string      `json:"category"`
	SourceID     int64       `json:"sourceId"`
	CompanyID    int64       `json:"companyId"`
	AccountID    string      `json:"accountId,omitempty"`
	Subcategory  string      `json:"subcategory,omitempty"`
	LineItemName string      `json:"lineItemName,omitempty"`
	FromDate     string      `json:"fromDate"`
	ToDate       string      `json:"toDate"`
}

// Fingerprint returns the hex md5 digest of the record's identity fields.
// Metadata, SourceName and OriginalID never participate, so the same fact
// reported with different provenance yields the same fingerprint.
func Fingerprint(r domain.Record) string {
	id := identity{
		Amount:       json.Number(r.Amount.String()),
		Category:     r.Category,
		SourceID:     r.SourceID,
		CompanyID:    r.CompanyID,
		AccountID:    r.AccountID,
		Subcategory:  r.Subcategory,
		LineItemName: r.LineItemName,
		FromDate:     r.FromDate,
		ToDate:       r.ToDate,
	}
	// Marshal cannot fail for this struct.
	b, _ := json.Marshal(id)
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
