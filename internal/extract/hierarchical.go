package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/logger"
)

const (
	// DefaultMaxDepth bounds grouping-row nesting in hierarchical reports.
	DefaultMaxDepth = 64

	moneyColumnType = "Money"
	defaultRowType  = "Data"
	pathSeparator   = " > "
)

// Hierarchical extracts records from nested grouping/leaf reports where each
// leaf row carries one cell per reporting period column.
type Hierarchical struct {
	maxDepth int
}

// NewHierarchical creates a hierarchical extractor with DefaultMaxDepth.
func NewHierarchical() *Hierarchical {
	return &Hierarchical{maxDepth: DefaultMaxDepth}
}

// WithMaxDepth returns a copy of the extractor with a different nesting ceiling.
func (h *Hierarchical) WithMaxDepth(depth int) *Hierarchical {
	return &Hierarchical{maxDepth: depth}
}

// Format implements Extractor.
func (h *Hierarchical) Format() domain.Format {
	return domain.FormatHierarchical
}

type hierarchicalPayload struct {
	Data *reportData `json:"data"`
}

type reportData struct {
	Header  *reportHeader `json:"Header"`
	Columns *struct {
		Column []reportColumn `json:"Column"`
	} `json:"Columns"`
	Rows *struct {
		Row []json.RawMessage `json:"Row"`
	} `json:"Rows"`
}

type reportHeader struct {
	ReportName  looseString `json:"ReportName"`
	ReportBasis looseString `json:"ReportBasis"`
	Currency    looseString `json:"Currency"`
	Option      []nameValue `json:"Option"`
}

type reportColumn struct {
	ColTitle looseString `json:"ColTitle"`
	ColType  looseString `json:"ColType"`
	MetaData []nameValue `json:"MetaData"`
}

type nameValue struct {
	Name  looseString `json:"Name"`
	Value looseString `json:"Value"`
}

func lookup(pairs []nameValue, name string) string {
	for _, p := range pairs {
		if string(p.Name) == name {
			return string(p.Value)
		}
	}
	return ""
}

// reportContext is captured once from the document header and copied into
// the metadata of every record.
type reportContext struct {
	reportName         string
	reportBasis        string
	currency           string
	accountingStandard string
}

// periodColumn is a money column with both date boundaries declared.
type periodColumn struct {
	cell  int // index into a leaf row's cells
	title string
	start string
	end   string
}

// Extract implements Extractor.
func (h *Hierarchical) Extract(ctx context.Context, payload []byte, scope Scope) ([]domain.Record, error) {
	log := logger.FromContext(ctx)

	var doc hierarchicalPayload
	if err := json.NewDecoder(bytes.NewReader(payload)).Decode(&doc); err != nil {
		return nil, shapeErrorf(h.Format(), "decode: %v", err)
	}
	if doc.Data == nil || doc.Data.Header == nil || doc.Data.Columns == nil || doc.Data.Rows == nil {
		return nil, shapeErrorf(h.Format(), "data must carry Header, Columns and Rows")
	}

	header := doc.Data.Header
	report := reportContext{
		reportName:         string(header.ReportName),
		reportBasis:        string(header.ReportBasis),
		currency:           string(header.Currency),
		accountingStandard: lookup(header.Option, "AccountingStandard"),
	}

	columns := periodColumns(doc.Data.Columns.Column)
	log.Debug().
		Int64("company_id", scope.CompanyID).
		Int64("source_id", scope.SourceID).
		Str("report_name", report.reportName).
		Int("period_columns", len(columns)).
		Msg("Extracting hierarchical report")

	w := &treeWalker{
		format:   h.Format(),
		scope:    scope,
		report:   report,
		columns:  columns,
		maxDepth: h.maxDepth,
	}
	if err := w.walk(doc.Data.Rows.Row, 0, nil); err != nil {
		return nil, err
	}
	return w.records, nil
}

// periodColumns keeps money columns in order. The k-th money column reads
// cell k+1 of a leaf row; cell 0 is the row's own name. Columns missing a
// StartDate or EndDate keep their slot but produce no records.
func periodColumns(all []reportColumn) []periodColumn {
	var columns []periodColumn
	for _, col := range all {
		if string(col.ColType) != moneyColumnType {
			continue
		}
		columns = append(columns, periodColumn{
			cell:  len(columns) + 1,
			title: string(col.ColTitle),
			start: lookup(col.MetaData, "StartDate"),
			end:   lookup(col.MetaData, "EndDate"),
		})
	}
	return columns
}

type treeWalker struct {
	format   domain.Format
	scope    Scope
	report   reportContext
	columns  []periodColumn
	maxDepth int
	records  []domain.Record
}

// walk visits rows depth-first. path holds the names of the grouping rows
// above the current level. Rows are decoded one level at a time, after the
// depth check, so nesting past the ceiling is never decoded.
func (w *treeWalker) walk(rows []json.RawMessage, depth int, path []string) error {
	if depth > w.maxDepth {
		return shapeErrorf(w.format, "rows nested deeper than %d levels at %q", w.maxDepth, strings.Join(path, pathSeparator))
	}
	for _, raw := range rows {
		row, err := decodeRow(raw)
		if err != nil {
			return err
		}
		switch row.kind {
		case rowGrouping:
			childPath := appendPath(path, row.name)
			if err := w.walk(row.children, depth+1, childPath); err != nil {
				return err
			}
		case rowLeaf:
			w.emitLeaf(row, depth, appendPath(path, string(row.cells[0].Value)))
		}
	}
	return nil
}

func (w *treeWalker) emitLeaf(row *rowNode, depth int, path []string) {
	category, subcategory := categoriesFromPath(path)
	lineItemName := string(row.cells[0].Value)
	accountID := string(row.cells[0].ID)
	joinedPath := strings.Join(path, pathSeparator)

	rowType := row.rowType
	if rowType == "" {
		rowType = defaultRowType
	}

	for _, col := range w.columns {
		if col.start == "" || col.end == "" {
			continue
		}
		if !domain.ValidPeriod(col.start, col.end) {
			continue
		}
		if col.cell >= len(row.cells) {
			continue
		}
		amount, ok := nonZeroAmount(string(row.cells[col.cell].Value))
		if !ok {
			continue
		}

		w.records = append(w.records, domain.Record{
			CompanyID:    w.scope.CompanyID,
			SourceID:     w.scope.SourceID,
			SourceName:   w.scope.SourceName,
			FromDate:     col.start,
			ToDate:       col.end,
			Category:     category,
			Subcategory:  subcategory,
			LineItemName: lineItemName,
			AccountID:    accountID,
			Amount:       amount,
			Metadata: map[string]any{
				"depth":              depth,
				"rowType":            rowType,
				"path":               joinedPath,
				"currency":           w.report.currency,
				"reportName":         w.report.reportName,
				"reportBasis":        w.report.reportBasis,
				"colTitle":           col.title,
				"accountingStandard": w.report.accountingStandard,
			},
		})
	}
}

// categoriesFromPath applies the fixed rule: the root-level name is the
// category and the second-level name is the subcategory.
func categoriesFromPath(path []string) (category, subcategory string) {
	if len(path) > 0 {
		category = strings.TrimSpace(path[0])
	}
	if len(path) > 1 {
		subcategory = strings.TrimSpace(path[1])
	}
	return category, subcategory
}

func appendPath(path []string, name string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	return append(next, name)
}

type rowKind int

const (
	rowSummaryOnly rowKind = iota
	rowGrouping
	rowLeaf
)

// rowNode is a report row: a grouping row with a name and nested rows, or a
// leaf row with a name cell followed by one cell per period column.
// A section that only carries a Summary (a computed total) is kept as
// rowSummaryOnly and contributes no records. Children stay undecoded.
type rowNode struct {
	kind     rowKind
	rowType  string
	name     string
	children []json.RawMessage
	cells    []cell
}

type cell struct {
	Value looseString `json:"value"`
	ID    looseString `json:"id"`
}

func decodeRow(b []byte) (*rowNode, error) {
	var raw struct {
		Header *struct {
			ColData []cell `json:"ColData"`
		} `json:"Header"`
		Rows *struct {
			Row []json.RawMessage `json:"Row"`
		} `json:"Rows"`
		ColData []cell          `json:"ColData"`
		Summary json.RawMessage `json:"Summary"`
		Type    string          `json:"type"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, shapeErrorf(domain.FormatHierarchical, "decode row: %v", err)
	}

	n := &rowNode{}

	n.rowType = raw.Type
	switch {
	case raw.Header != nil:
		if len(raw.Header.ColData) == 0 {
			return nil, shapeErrorf(domain.FormatHierarchical, "grouping row without a name cell")
		}
		n.kind = rowGrouping
		n.name = string(raw.Header.ColData[0].Value)
		if raw.Rows != nil {
			n.children = raw.Rows.Row
		}
	case raw.ColData != nil:
		if len(raw.ColData) == 0 {
			return nil, shapeErrorf(domain.FormatHierarchical, "leaf row without cells")
		}
		n.kind = rowLeaf
		n.cells = raw.ColData
	case len(raw.Summary) > 0:
		n.kind = rowSummaryOnly
	default:
		return nil, shapeErrorf(domain.FormatHierarchical, "row is neither a grouping nor a leaf: %s", truncate(string(b), 120))
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
