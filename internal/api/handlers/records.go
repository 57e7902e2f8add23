package handlers

import (
	"fmt"
	"math"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
	"github.com/dvloznov/ledgersync/internal/domain"
)

// RecordsHandler serves stored records.
type RecordsHandler struct {
	service SyncService
	log     zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(service SyncService, log zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{service: service, log: log}
}

// ListRecords handles GET /api/records/{companyId}
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("companyId")
	companyID, err := parseID("companyId", raw)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	page, err := h.service.ListRecords(r.Context(), companyID, filter)
	if err != nil {
		writeServiceError(w, h.log, err, fmt.Sprintf("Company not found: %s", raw), "Failed to list records")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, page)
}

func parseRecordFilter(r *http.Request) (domain.RecordFilter, error) {
	query := r.URL.Query()
	var (
		filter domain.RecordFilter
		err    error
	)

	if filter.StartDate, err = optionalDate("start_date", query.Get("start_date")); err != nil {
		return filter, err
	}
	if filter.EndDate, err = optionalDate("end_date", query.Get("end_date")); err != nil {
		return filter, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return filter, badRequestf("start_date must not be after end_date")
	}
	if filter.SourceID, err = optionalID("source_id", query.Get("source_id")); err != nil {
		return filter, err
	}
	if filter.Page, err = optionalInt("page", query.Get("page"), 1); err != nil {
		return filter, err
	}
	if filter.Limit, err = optionalInt("limit", query.Get("limit"), 1); err != nil {
		return filter, err
	}
	if filter.Limit > domain.MaxPageSize {
		return filter, badRequestf("limit must be at most %d", domain.MaxPageSize)
	}
	if limit := filter.Normalize().Limit; filter.Page > math.MaxInt/limit {
		return filter, badRequestf("Invalid page: %d", filter.Page)
	}
	filter.Category = query.Get("category")
	filter.SourceName = query.Get("source_name")
	return filter, nil
}
