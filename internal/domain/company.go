package domain

import "time"

// Format tags the payload layout a source returns.
type Format string

const (
	// FormatHierarchical is a nested grouping/leaf report with one column per period.
	FormatHierarchical Format = "hierarchical"
	// FormatFlat is a list of monthly entries carrying named category sections.
	FormatFlat Format = "flat"
)

// Company is a reporting entity with its configured upstream sources.
type Company struct {
	ID      int64     `json:"id" yaml:"id"`
	Name    string    `json:"name" yaml:"name"`
	Sources []*Source `json:"sources" yaml:"sources"`
}

// Source is one upstream API endpoint configured for a company.
type Source struct {
	ID        int64  `json:"id" yaml:"id"`
	CompanyID int64  `json:"company_id" yaml:"-"`
	Name      string `json:"name" yaml:"name"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`

	// Credential is sent as a bearer token when set.
	Credential string `json:"-" yaml:"credential"`

	QueryParams map[string]string `json:"query_params,omitempty" yaml:"query_params"`

	// Format overrides format detection when set.
	Format Format `json:"format,omitempty" yaml:"format"`

	// RecordsPath is an optional JSONPath selecting the payload part handed
	// to the extractor as its "data" member.
	RecordsPath string `json:"records_path,omitempty" yaml:"records_path"`

	LastSync *time.Time `json:"last_sync,omitempty" yaml:"-"`
}
