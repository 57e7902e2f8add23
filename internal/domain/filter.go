package domain

import (
	"math"

	"cloud.google.com/go/civil"
)

const (
	// DefaultPageSize is used when a record query does not set a limit.
	DefaultPageSize = 50
	// MaxPageSize caps the limit of a record query.
	MaxPageSize = 1000
)

// RecordFilter narrows a company's stored records. Zero values mean "any".
// Records are returned ordered by FromDate ascending.
type RecordFilter struct {
	// StartDate keeps records whose period starts on or after it.
	StartDate *civil.Date
	// EndDate keeps records whose period ends on or before it.
	EndDate *civil.Date

	Category   string
	SourceID   int64
	SourceName string

	// Page is 1-based.
	Page  int
	Limit int
}

// Normalize applies paging defaults and bounds.
func (f RecordFilter) Normalize() RecordFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

// Offset returns the number of records skipped before the page. It saturates
// at math.MaxInt instead of overflowing.
func (f RecordFilter) Offset() int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// Matches reports whether r satisfies the filter, ignoring paging.
// Records with unparseable dates never match a date bound.
func (f RecordFilter) Matches(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.SourceID != 0 && r.SourceID != f.SourceID {
		return false
	}
	if f.SourceName != "" && r.SourceName != f.SourceName {
		return false
	}
	if f.StartDate == nil && f.EndDate == nil {
		return true
	}
	from, to, err := r.Period()
	if err != nil {
		return false
	}
	if f.StartDate != nil && from.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && to.After(*f.EndDate) {
		return false
	}
	return true
}

// RecordPage is one page of a record query.
type RecordPage struct {
	Records []Record `json:"data"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}
