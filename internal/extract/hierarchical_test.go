package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledgersync/internal/domain"
)

const januaryColumns = `{"Column": [
	{"ColTitle": "", "ColType": "Account"},
	{"ColTitle": "Jan 2024", "ColType": "Money", "MetaData": [
		{"Name": "StartDate", "Value": "2024-01-01"},
		{"Name": "EndDate", "Value": "2024-01-31"}
	]}
]}`

func hierarchicalDoc(columns, rows string) []byte {
	return []byte(fmt.Sprintf(`{"data": {
		"Header": {"ReportName": "ProfitAndLoss", "ReportBasis": "Accrual", "Currency": "USD",
			"Option": [{"Name": "AccountingStandard", "Value": "GAAP"}]},
		"Columns": %s,
		"Rows": {"Row": %s}
	}}`, columns, rows))
}

var testScope = Scope{CompanyID: 1, SourceID: 10, SourceName: "ledger-api"}

func TestHierarchical_RootLeaf(t *testing.T) {
	payload := hierarchicalDoc(januaryColumns, `[
		{"ColData": [{"value": "Total Income"}, {"value": "1000"}], "type": "Data"}
	]`)

	records, err := NewHierarchical().Extract(context.Background(), payload, testScope)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	r := records[0]
	if r.Category != "Total Income" {
		t.Errorf("Category = %q, want %q", r.Category, "Total Income")
	}
	if r.Subcategory != "" {
		t.Errorf("Subcategory = %q, want empty", r.Subcategory)
	}
	if r.Amount.String() != "1000" {
		t.Errorf("Amount = %s, want 1000", r.Amount)
	}
	if r.FromDate != "2024-01-01" || r.ToDate != "2024-01-31" {
		t.Errorf("Period = %s..%s, want 2024-01-01..2024-01-31", r.FromDate, r.ToDate)
	}
	if r.CompanyID != 1 || r.SourceID != 10 || r.SourceName != "ledger-api" {
		t.Errorf("Scope not applied: %+v", r)
	}
	if r.Metadata["path"] != "Total Income" {
		t.Errorf("metadata path = %v, want %q", r.Metadata["path"], "Total Income")
	}
	if r.Metadata["accountingStandard"] != "GAAP" {
		t.Errorf("metadata accountingStandard = %v, want GAAP", r.Metadata["accountingStandard"])
	}
}

func TestHierarchical_PathRule(t *testing.T) {
	payload := hierarchicalDoc(januaryColumns, `[
		{"Header": {"ColData": [{"value": "Income"}]}, "Rows": {"Row": [
			{"ColData": [{"value": "Sales", "id": "4000"}, {"value": "250.50"}]},
			{"Header": {"ColData": [{"value": "Services"}]}, "Rows": {"Row": [
				{"ColData": [{"value": "Consulting", "id": "4100"}, {"value": "75"}]}
			]}}
		]}, "Summary": {"ColData": [{"value": "Total Income"}, {"value": "325.50"}]}}
	]`)

	records, err := NewHierarchical().Extract(context.Background(), payload, testScope)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	tests := []struct {
		lineItem    string
		category    string
		subcategory string
		accountID   string
		path        string
		depth       int
	}{
		{lineItem: "Sales", category: "Income", subcategory: "Sales", accountID: "4000", path: "Income > Sales", depth: 1},
		{lineItem: "Consulting", category: "Income", subcategory: "Services", accountID: "4100", path: "Income > Services > Consulting", depth: 2},
	}
	if len(records) != len(tests) {
		t.Fatalf("Expected %d records, got %d", len(tests), len(records))
	}
	for i, tt := range tests {
		r := records[i]
		if r.LineItemName != tt.lineItem {
			t.Errorf("record %d: LineItemName = %q, want %q", i, r.LineItemName, tt.lineItem)
		}
		if r.Category != tt.category || r.Subcategory != tt.subcategory {
			t.Errorf("record %d: category = %q/%q, want %q/%q", i, r.Category, r.Subcategory, tt.category, tt.subcategory)
		}
		if r.AccountID != tt.accountID {
			t.Errorf("record %d: AccountID = %q, want %q", i, r.AccountID, tt.accountID)
		}
		if r.Metadata["path"] != tt.path {
			t.Errorf("record %d: path = %v, want %q", i, r.Metadata["path"], tt.path)
		}
		if r.Metadata["depth"] != tt.depth {
			t.Errorf("record %d: depth = %v, want %d", i, r.Metadata["depth"], tt.depth)
		}
	}
}

func TestHierarchical_SkipsUnusableCells(t *testing.T) {
	columns := `{"Column": [
		{"ColType": "Account"},
		{"ColTitle": "Jan", "ColType": "Money", "MetaData": [
			{"Name": "StartDate", "Value": "2024-01-01"}, {"Name": "EndDate", "Value": "2024-01-31"}]},
		{"ColTitle": "No end", "ColType": "Money", "MetaData": [
			{"Name": "StartDate", "Value": "2024-02-01"}]},
		{"ColTitle": "Mar", "ColType": "Money", "MetaData": [
			{"Name": "StartDate", "Value": "2024-03-01"}, {"Name": "EndDate", "Value": "2024-03-31"}]}
	]}`
	payload := hierarchicalDoc(columns, `[
		{"ColData": [{"value": "Zero"}, {"value": "0"}, {"value": "5"}, {"value": "0.00"}]},
		{"ColData": [{"value": "Blank"}, {"value": ""}, {"value": "5"}, {"value": "n/a"}]},
		{"ColData": [{"value": "Short"}, {"value": "12"}]},
		{"ColData": [{"value": "Both"}, {"value": "-3.25"}, {"value": "9"}, {"value": "4"}]}
	]`)

	records, err := NewHierarchical().Extract(context.Background(), payload, testScope)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var got []string
	for _, r := range records {
		if r.Amount.IsZero() {
			t.Errorf("zero amount emitted for %q", r.LineItemName)
		}
		got = append(got, fmt.Sprintf("%s:%s:%s", r.LineItemName, r.FromDate, r.Amount))
	}
	want := []string{
		"Short:2024-01-01:12",
		"Both:2024-01-01:-3.25",
		"Both:2024-03-01:4",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("records = %v, want %v", got, want)
	}
}

func TestHierarchical_SummaryOnlySectionIgnored(t *testing.T) {
	payload := hierarchicalDoc(januaryColumns, `[
		{"Summary": {"ColData": [{"value": "Net Income"}, {"value": "900"}]}, "type": "Section"}
	]`)

	records, err := NewHierarchical().Extract(context.Background(), payload, testScope)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestHierarchical_ShapeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{"data":`},
		{name: "missing data", payload: `{}`},
		{name: "missing rows", payload: `{"data": {"Header": {}, "Columns": {"Column": []}}}`},
		{name: "missing header", payload: `{"data": {"Columns": {"Column": []}, "Rows": {"Row": []}}}`},
		{name: "unknown row", payload: string(hierarchicalDoc(januaryColumns, `[{"foo": 1}]`))},
		{name: "grouping without name", payload: string(hierarchicalDoc(januaryColumns, `[{"Header": {"ColData": []}}]`))},
		{name: "leaf without cells", payload: string(hierarchicalDoc(januaryColumns, `[{"ColData": []}]`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHierarchical().Extract(context.Background(), []byte(tt.payload), testScope)
			var shapeErr *ShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("Expected *ShapeError, got %v", err)
			}
			if shapeErr.Format != domain.FormatHierarchical {
				t.Errorf("Format = %q, want %q", shapeErr.Format, domain.FormatHierarchical)
			}
		})
	}
}

func TestHierarchical_DepthCeiling(t *testing.T) {
	nested := func(levels int) string {
		rows := `[{"ColData": [{"value": "Deep"}, {"value": "1"}]}]`
		for i := 0; i < levels; i++ {
			rows = fmt.Sprintf(`[{"Header": {"ColData": [{"value": "L%d"}]}, "Rows": {"Row": %s}}]`, i, rows)
		}
		return rows
	}

	extractor := NewHierarchical().WithMaxDepth(3)

	records, err := extractor.Extract(context.Background(), hierarchicalDoc(januaryColumns, nested(3)), testScope)
	if err != nil {
		t.Fatalf("Extract at the ceiling failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record at the ceiling, got %d", len(records))
	}

	_, err = extractor.Extract(context.Background(), hierarchicalDoc(januaryColumns, nested(4)), testScope)
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Expected *ShapeError beyond the ceiling, got %v", err)
	}
}

func TestHierarchical_PathologicalNestingRejectedQuickly(t *testing.T) {
	for _, levels := range []int{1000, 5000} {
		t.Run(fmt.Sprintf("%d levels", levels), func(t *testing.T) {
			group := `[{"Header": {"ColData": [{"value": "G"}]}, "Rows": {"Row": `
			rows := strings.Repeat(group, levels) +
				`[{"ColData": [{"value": "Deep"}, {"value": "1"}]}]` +
				strings.Repeat(`}}]`, levels)

			start := time.Now()
			_, err := NewHierarchical().Extract(context.Background(), hierarchicalDoc(januaryColumns, rows), testScope)
			elapsed := time.Since(start)

			var shapeErr *ShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("Expected *ShapeError, got %v", err)
			}
			if elapsed > 2*time.Second {
				t.Errorf("rejecting %d levels took %s", levels, elapsed)
			}
		})
	}
}
