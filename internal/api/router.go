// Package api assembles the HTTP surface of the sync service.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/handlers"
	"github.com/dvloznov/ledgersync/internal/api/middleware"
)

// Options configures NewRouter.
type Options struct {
	// SampleDataDir enables GET /api/sample-data/{id} when set.
	SampleDataDir string
}

// NewRouter returns the HTTP handler with every route and the middleware
// chain applied.
func NewRouter(service handlers.SyncService, log zerolog.Logger, opts Options) http.Handler {
	syncHandler := handlers.NewSyncHandler(service, log)
	jobsHandler := handlers.NewJobsHandler(service, log)
	recordsHandler := handlers.NewRecordsHandler(service, log)
	companiesHandler := handlers.NewCompaniesHandler(service, log)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sync/{companyId}", syncHandler.StartSync)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)
	mux.HandleFunc("GET /api/jobs/company/{companyId}", jobsHandler.ListCompanyJobs)

	mux.HandleFunc("GET /api/records/{companyId}", recordsHandler.ListRecords)

	mux.HandleFunc("GET /api/companies", companiesHandler.ListCompanies)
	mux.HandleFunc("GET /api/companies/{id}", companiesHandler.GetCompany)

	if opts.SampleDataDir != "" {
		sampleHandler := handlers.NewSampleDataHandler(opts.SampleDataDir, log)
		mux.HandleFunc("GET /api/sample-data/{id}", sampleHandler.GetSample)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)
}
