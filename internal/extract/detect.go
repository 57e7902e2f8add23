package extract

import "github.com/dvloznov/ledgersync/internal/domain"

// Detector picks the payload format of a source.
//
// A format declared on the source configuration always wins. Sources without
// one fall back to a fixed mapping keyed by company id, which is how the first
// two integrations were wired; unmapped companies are treated as hierarchical.
type Detector struct {
	byCompany map[int64]domain.Format
	fallback  domain.Format
}

// NewDetector creates a detector with the legacy company mapping.
func NewDetector() *Detector {
	return &Detector{
		byCompany: map[int64]domain.Format{
			1: domain.FormatHierarchical,
			2: domain.FormatFlat,
		},
		fallback: domain.FormatHierarchical,
	}
}

// Detect returns the format to use for src. It never fails.
func (d *Detector) Detect(src *domain.Source) domain.Format {
	if src == nil {
		return d.fallback
	}
	if src.Format != "" {
		return src.Format
	}
	if f, ok := d.byCompany[src.CompanyID]; ok {
		return f
	}
	return d.fallback
}
