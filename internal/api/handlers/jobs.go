package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
	"github.com/dvloznov/ledgersync/internal/jobs"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	service SyncService
	log     zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(service SyncService, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{service: service, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, h.log, err, fmt.Sprintf("Job not found: %s", jobID), "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	jobsList, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "", "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.SyncJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// ListCompanyJobs handles GET /api/jobs/company/{companyId}
func (h *JobsHandler) ListCompanyJobs(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("companyId")
	companyID, err := parseID("companyId", raw)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}
	sourceID, err := optionalID("source_id", r.URL.Query().Get("source_id"))
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	jobsList, err := h.service.ListCompanyJobs(r.Context(), companyID, sourceID)
	if err != nil {
		writeServiceError(w, h.log, err, fmt.Sprintf("Company not found: %s", raw), "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.SyncJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, jobsList)
}

func parseJobFilter(r *http.Request) (jobs.JobFilter, error) {
	query := r.URL.Query()
	var (
		filter jobs.JobFilter
		err    error
	)

	if filter.CompanyID, err = optionalID("company_id", query.Get("company_id")); err != nil {
		return filter, err
	}
	if filter.SourceID, err = optionalID("source_id", query.Get("source_id")); err != nil {
		return filter, err
	}
	if status := jobs.JobStatus(query.Get("status")); status != "" {
		if !status.Valid() {
			return filter, badRequestf("Invalid status: %s", status)
		}
		filter.Status = status
	}
	if filter.Limit, err = optionalInt("limit", query.Get("limit"), 1); err != nil {
		return filter, err
	}
	if filter.Offset, err = optionalInt("offset", query.Get("offset"), 0); err != nil {
		return filter, err
	}
	return filter, nil
}
