package main

import (
	"context"
	"flag"

	"cloud.google.com/go/civil"
	"github.com/google/subcommands"

	"github.com/dvloznov/ledgersync/internal/domain"
)

type recordsCmd struct {
	companyID int64
	start     string
	end       string
	category  string
	page      int
	limit     int
	currency  string
}

func (*recordsCmd) Name() string     { return "records" }
func (*recordsCmd) Synopsis() string { return "show stored records of a company" }
func (*recordsCmd) Usage() string {
	return `cli records -company <id> [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-category name] [-page n] [-limit n]

  Prints one page of stored records with formatted amounts.
`
}

func (c *recordsCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.companyID, "company", 0, "Company id")
	f.StringVar(&c.start, "start", "", "Keep records starting on or after this date")
	f.StringVar(&c.end, "end", "", "Keep records ending on or before this date")
	f.StringVar(&c.category, "category", "", "Filter by category")
	f.IntVar(&c.page, "page", 1, "Page number")
	f.IntVar(&c.limit, "limit", domain.DefaultPageSize, "Records per page")
	f.StringVar(&c.currency, "currency", "USD", "Currency used when records carry none")
}

func (c *recordsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.companyID <= 0 {
		fail("-company is required")
		return subcommands.ExitUsageError
	}
	filter := domain.RecordFilter{Category: c.category, Page: c.page, Limit: c.limit}
	for _, d := range []struct {
		raw string
		dst **civil.Date
	}{{c.start, &filter.StartDate}, {c.end, &filter.EndDate}} {
		if d.raw == "" {
			continue
		}
		date, err := civil.ParseDate(d.raw)
		if err != nil {
			fail("invalid date %q", d.raw)
			return subcommands.ExitUsageError
		}
		*d.dst = &date
	}

	stack, err := openStack(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer stack.Close()

	filter = filter.Normalize()
	records, total, err := stack.Records.ListByCompany(ctx, c.companyID, filter)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	printMarkdown(recordsMarkdown(records, c.currency, total))
	return subcommands.ExitSuccess
}
