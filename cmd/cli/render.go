package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/jobs"
)

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(160))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			fmt.Fprint(os.Stdout, out)
			return
		}
	}
	fmt.Fprint(os.Stdout, md)
}

// formatAmount formats d in currency code using the currency's own fraction
// digits and symbol. Unknown codes are formatted like "XXX 12.30".
func formatAmount(d decimal.Decimal, code string) string {
	cur := money.GetCurrency(strings.ToUpper(code))
	if cur == nil {
		return strings.ToUpper(code) + " " + d.StringFixed(2)
	}
	minor := d.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(minor.IntPart())
}

// recordCurrency returns the currency a record was reported in, if known.
func recordCurrency(r domain.Record, fallback string) string {
	for _, key := range []string{"currency", "currency_id"} {
		if s, ok := r.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// recordsMarkdown renders records as a markdown table.
func recordsMarkdown(records []domain.Record, currency string, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Records (%d of %d)\n\n", len(records), total)
	if len(records) == 0 {
		b.WriteString("_No records._\n")
		return b.String()
	}

	b.WriteString("| Period | Category | Subcategory | Line item | Account | Amount |\n")
	b.WriteString("|---|---|---|---|---|---:|\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %s – %s | %s | %s | %s | %s | %s |\n",
			cell(r.FromDate), cell(r.ToDate), cell(r.Category), cell(r.Subcategory),
			cell(r.LineItemName), cell(r.AccountID), formatAmount(r.Amount, recordCurrency(r, currency)))
	}
	return b.String()
}

// jobsMarkdown renders jobs as a markdown table.
func jobsMarkdown(list []*jobs.SyncJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sync jobs (%d)\n\n", len(list))
	if len(list) == 0 {
		b.WriteString("_No jobs._\n")
		return b.String()
	}

	b.WriteString("| Job | Company | Source | Status | Started | Completed | Message |\n")
	b.WriteString("|---|---:|---|---|---|---|---|\n")
	for _, j := range list {
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s |\n",
			j.ID, j.CompanyID, cell(j.SourceName), j.Status,
			j.StartedAt.Format(time.RFC3339), completed, cell(j.Error))
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func findSource(sources []*domain.Source, id int64) *domain.Source {
	for _, src := range sources {
		if src.ID == id {
			return src
		}
	}
	return nil
}
