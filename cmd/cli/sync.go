package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgersync/internal/jobs"
)

type syncCmd struct {
	companyID int64
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "sync every source of a company and wait for the result" }
func (*syncCmd) Usage() string {
	return `cli sync -company <id>

  Runs a sync job in the foreground against the configured backend
  (STORE_BACKEND) and prints the finished job.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.companyID, "company", 0, "Company id")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.companyID <= 0 {
		fail("-company is required")
		return subcommands.ExitUsageError
	}

	stack, err := openStack(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer stack.Close()

	job, err := stack.Jobs.Create(ctx, c.companyID)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	// Run records its own failures on the job.
	_ = stack.Syncer().Run(ctx, job.ID, c.companyID)

	done, err := stack.Jobs.Get(ctx, job.ID)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	printMarkdown(jobsMarkdown([]*jobs.SyncJob{done}))

	if done.Status != jobs.JobStatusCompleted {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
