package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/dvloznov/ledgersync/internal/dedup"
	"github.com/dvloznov/ledgersync/internal/gcsuploader"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

type replayCmd struct {
	uri       string
	companyID int64
	sourceID  int64
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "re-extract an archived payload into the record store" }
func (*replayCmd) Usage() string {
	return `cli replay -uri gs://<bucket>/payloads/<company>/<source>/<hash>.json -company <id> -source <id>

  Downloads an archived payload and runs it through extraction and
  persistence again. Records already stored are skipped.
`
}

func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.uri, "uri", "", "Archive URI of the payload")
	f.Int64Var(&c.companyID, "company", 0, "Company id")
	f.Int64Var(&c.sourceID, "source", 0, "Source id")
}

func (c *replayCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.uri == "" || c.companyID <= 0 || c.sourceID <= 0 {
		fail("-uri, -company and -source are required")
		return subcommands.ExitUsageError
	}
	bucket, _, err := gcsuploader.ParseURI(c.uri)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitUsageError
	}

	stack, err := openStack(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer stack.Close()

	company, err := stack.Companies.FindWithSources(ctx, c.companyID)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	src := findSource(company.Sources, c.sourceID)
	if src == nil {
		fail("source %d not found for company %d: %v", c.sourceID, c.companyID, pipeline.ErrNotFound)
		return subcommands.ExitFailure
	}

	archiver := stack.Archiver
	if archiver == nil {
		store, err := gcsuploader.NewGCSStore(ctx)
		if err != nil {
			fail("%v", err)
			return subcommands.ExitFailure
		}
		defer store.Close()
		archiver = gcsuploader.NewArchiver(store, bucket)
	}

	payload, err := archiver.Fetch(ctx, c.uri)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	records, err := extractPayload(ctx, src, payload)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	inserted, err := dedup.NewPersister(stack.Records).PersistNew(ctx, records)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Replayed %s (payload %s): %d records extracted, %d new\n",
		c.uri, gcsuploader.ContentHashFromURI(c.uri), len(records), inserted)
	return subcommands.ExitSuccess
}
