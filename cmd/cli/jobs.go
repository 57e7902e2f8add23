package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

type jobsCmd struct {
	companyID int64
	status    string
	limit     int
}

func (*jobsCmd) Name() string     { return "jobs" }
func (*jobsCmd) Synopsis() string { return "list sync jobs" }
func (*jobsCmd) Usage() string {
	return `cli jobs [-company <id>] [-status running|completed|failed] [-limit n]

  Lists sync jobs, most recent first. Only backends that persist jobs
  (bigquery, postgres) show jobs from other processes.
`
}

func (c *jobsCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.companyID, "company", 0, "Filter by company id")
	f.StringVar(&c.status, "status", "", "Filter by status")
	f.IntVar(&c.limit, "limit", 20, "Maximum number of jobs")
}

func (c *jobsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	status := jobs.JobStatus(c.status)
	if status != "" && !status.Valid() {
		fail("invalid status %q", c.status)
		return subcommands.ExitUsageError
	}

	stack, err := openStack(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer stack.Close()

	list, err := stack.Jobs.List(ctx, jobs.JobFilter{CompanyID: c.companyID, Status: status, Limit: c.limit})
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	printMarkdown(jobsMarkdown(list))
	return subcommands.ExitSuccess
}
