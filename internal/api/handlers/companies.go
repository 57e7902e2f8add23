package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
	"github.com/dvloznov/ledgersync/internal/domain"
)

// CompaniesHandler exposes the configured companies.
type CompaniesHandler struct {
	service SyncService
	log     zerolog.Logger
}

// NewCompaniesHandler creates a new companies handler.
func NewCompaniesHandler(service SyncService, log zerolog.Logger) *CompaniesHandler {
	return &CompaniesHandler{service: service, log: log}
}

// ListCompanies handles GET /api/companies
func (h *CompaniesHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "", "Failed to list companies")
		return
	}
	if companies == nil {
		companies = []*domain.Company{}
	}
	middleware.WriteJSON(w, http.StatusOK, companies)
}

// GetCompany handles GET /api/companies/{id}
func (h *CompaniesHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	companyID, err := parseID("id", raw)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	company, err := h.service.GetCompany(r.Context(), companyID)
	if err != nil {
		writeServiceError(w, h.log, err, fmt.Sprintf("Company not found: %s", raw), "Failed to get company")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, company)
}
