package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Record represents one normalized monetary fact extracted from a source payload.
// This is a domain struct, not a storage row; each record store maps it into
// its own schema.
type Record struct {
	CompanyID  int64  `json:"companyId"`
	SourceID   int64  `json:"sourceId"`
	SourceName string `json:"sourceName"`

	// FromDate and ToDate keep the period boundaries exactly as the upstream
	// payload spelled them. They feed the fingerprint verbatim.
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`

	Category     string `json:"category"`
	Subcategory  string `json:"subcategory,omitempty"`
	LineItemName string `json:"lineItemName,omitempty"`
	AccountID    string `json:"accountId,omitempty"`

	Amount decimal.Decimal `json:"amount"`

	// OriginalID is the record fingerprint and the dedup key across runs.
	OriginalID string `json:"originalId"`

	// Metadata holds provenance only (depth, path, report context, period tags).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Period parses the leading calendar date of FromDate and ToDate.
// No timezone conversion is applied: "2024-01-31T23:00:00-05:00" is 2024-01-31.
func (r *Record) Period() (civil.Date, civil.Date, error) {
	from, err := ParseDate(r.FromDate)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("from date: %w", err)
	}
	to, err := ParseDate(r.ToDate)
	if err != nil {
		return civil.Date{}, civil.Date{}, fmt.Errorf("to date: %w", err)
	}
	return from, to, nil
}

// ParseDate reads the YYYY-MM-DD prefix of a date or timestamp literal.
func ParseDate(s string) (civil.Date, error) {
	if len(s) < 10 {
		return civil.Date{}, fmt.Errorf("invalid date %q", s)
	}
	d, err := civil.ParseDate(s[:10])
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ValidPeriod reports whether both literals are dates and from is not after to.
func ValidPeriod(from, to string) bool {
	f, err := ParseDate(from)
	if err != nil {
		return false
	}
	t, err := ParseDate(to)
	if err != nil {
		return false
	}
	return !f.After(t)
}

// EncodeMetadata renders metadata as compact JSON text for storage. Characters
// such as '>' and '&' are kept literal. An empty map encodes as "".
func EncodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(metadata); err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
