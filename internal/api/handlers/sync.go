package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
)

// SyncHandler starts sync runs.
type SyncHandler struct {
	service SyncService
	log     zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(service SyncService, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{service: service, log: log}
}

// StartSync handles POST /api/sync/{companyId}. It answers 202 as soon as
// the run is queued.
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("companyId")
	companyID, err := parseID("companyId", raw)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	started, err := h.service.StartSync(r.Context(), companyID)
	if err != nil {
		writeServiceError(w, h.log, err, fmt.Sprintf("Company not found: %s", raw), "Failed to start sync")
		return
	}

	h.log.Info().Str("job_id", started.JobID).Int64("company_id", companyID).Msg("Sync accepted")
	middleware.WriteJSON(w, http.StatusAccepted, started)
}
