package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	recordTypeCategory = "category"
	recordTypeLineItem = "line_item"
)

// entryTags are copied from each monthly entry into the metadata of its records.
var entryTags = []string{"platform_id", "platform_unique_id", "currency_id"}

// Flat extracts records from payloads made of monthly entries, each holding
// named sections of {name, value, line_items} objects.
type Flat struct{}

// NewFlat creates a flat period extractor.
func NewFlat() *Flat {
	return &Flat{}
}

// Format implements Extractor.
func (f *Flat) Format() domain.Format {
	return domain.FormatFlat
}

// Extract implements Extractor.
func (f *Flat) Extract(ctx context.Context, payload []byte, scope Scope) ([]domain.Record, error) {
	log := logger.FromContext(ctx)

	var doc struct {
		Data any `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, shapeErrorf(f.Format(), "decode: %v", err)
	}
	entries, ok := doc.Data.([]any)
	if !ok {
		return nil, shapeErrorf(f.Format(), "data must be an array of monthly entries")
	}

	var records []domain.Record
	for i, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, shapeErrorf(f.Format(), "entry %d is not an object", i)
		}
		entryRecords, err := f.extractEntry(entry, i, scope)
		if err != nil {
			return nil, err
		}
		records = append(records, entryRecords...)
	}

	log.Debug().
		Int64("company_id", scope.CompanyID).
		Int64("source_id", scope.SourceID).
		Int("entries", len(entries)).
		Int("records", len(records)).
		Msg("Extracted flat period payload")

	return records, nil
}

func (f *Flat) extractEntry(entry map[string]any, index int, scope Scope) ([]domain.Record, error) {
	periodStart := textOf(entry["period_start"])
	periodEnd := textOf(entry["period_end"])
	if !domain.ValidPeriod(periodStart, periodEnd) {
		return nil, shapeErrorf(f.Format(), "entry %d has an invalid period %q..%q", index, periodStart, periodEnd)
	}

	tags := make(map[string]any, len(entryTags))
	for _, key := range entryTags {
		tags[key] = entry[key]
	}

	newRecord := func(recordType string) domain.Record {
		metadata := make(map[string]any, len(tags)+1)
		metadata["type"] = recordType
		for k, v := range tags {
			metadata[k] = v
		}
		return domain.Record{
			CompanyID:  scope.CompanyID,
			SourceID:   scope.SourceID,
			SourceName: scope.SourceName,
			FromDate:   periodStart,
			ToDate:     periodEnd,
			Metadata:   metadata,
		}
	}

	var records []domain.Record
	for _, key := range sectionKeys(entry) {
		category := FormatCategoryName(key)

		for _, raw := range entry[key].([]any) {
			group, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := group["name"].(string)
			if name == "" {
				continue
			}

			if amount, ok := nonZeroAmount(group["value"]); ok {
				r := newRecord(recordTypeCategory)
				r.Category = category
				r.Subcategory = name
				r.LineItemName = name
				r.Amount = amount
				records = append(records, r)
			}

			lineItems, _ := group["line_items"].([]any)
			for _, rawItem := range lineItems {
				item, ok := rawItem.(map[string]any)
				if !ok {
					continue
				}
				amount, ok := nonZeroAmount(item["value"])
				if !ok {
					continue
				}
				r := newRecord(recordTypeLineItem)
				r.Category = category
				r.Subcategory = name
				r.LineItemName = textOf(item["name"])
				r.AccountID = textOf(item["account_id"])
				r.Amount = amount
				records = append(records, r)
			}
		}
	}
	return records, nil
}

// sectionKeys returns, in sorted order, the keys of entry holding a non-empty
// array whose first element has both a name and a value member.
func sectionKeys(entry map[string]any) []string {
	var keys []string
	for key, v := range entry {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		first, ok := list[0].(map[string]any)
		if !ok {
			continue
		}
		_, hasName := first["name"]
		_, hasValue := first["value"]
		if hasName && hasValue {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// FormatCategoryName turns a section key such as "cost_of_goods_sold" into
// the display category "Cost Of Goods Sold".
func FormatCategoryName(key string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.Und).String(strings.ReplaceAll(strings.ToLower(key), "_", " "))
}
