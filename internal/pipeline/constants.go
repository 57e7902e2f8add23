package pipeline

import "time"

const (
	// DefaultFetchTimeout bounds each upstream request of a sync run.
	DefaultFetchTimeout = 30 * time.Second

	// StartedMessage is returned to callers when a sync is accepted.
	StartedMessage = "JSON API ETL process started for all API data sources"

	summaryFormat = "Successfully processed %d records from API sources"
)
