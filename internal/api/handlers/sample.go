package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgersync/internal/api/middleware"
)

// SampleDataHandler serves canned report payloads from a directory, one
// <id>.json file per sample. It stands in for an upstream API locally.
type SampleDataHandler struct {
	dir string
	log zerolog.Logger
}

// NewSampleDataHandler creates a handler serving files from dir.
func NewSampleDataHandler(dir string, log zerolog.Logger) *SampleDataHandler {
	return &SampleDataHandler{dir: dir, log: log}
}

// GetSample handles GET /api/sample-data/{id}
func (h *SampleDataHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := parseID("id", raw)
	if err != nil {
		writeServiceError(w, h.log, err, "", "")
		return
	}

	data, err := os.ReadFile(filepath.Join(h.dir, fmt.Sprintf("%d.json", id)))
	if errors.Is(err, fs.ErrNotExist) {
		middleware.WriteError(w, http.StatusNotFound, fmt.Sprintf("No sample data for id: %d", id))
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to read sample data")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read sample data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
