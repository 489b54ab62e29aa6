package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/export"
	"github.com/your-username/logsgate/pkg/response"
)

// ExportHandler serves query results as downloadable files
type ExportHandler struct {
	backend  database.Backend
	exporter *export.Exporter
}

func NewExportHandler(backend database.Backend, exporter *export.Exporter) *ExportHandler {
	return &ExportHandler{
		backend:  backend,
		exporter: exporter,
	}
}

// ExportLogs runs the same translation as GET /query and renders the hits
// in the requested format.
func (h *ExportHandler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	hits, err := search(r.Context(), h.backend, r.URL.Query())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, fmt.Sprintf("Error executing query: %v", err))
		return
	}

	// rendered up front so a failure can still become an error response
	var buf bytes.Buffer
	result, err := h.exporter.Export(&buf, format, hits)
	if err != nil {
		log.Error().Err(err).Str("format", string(format)).Msg("Export failed")
		response.Error(w, http.StatusInternalServerError, fmt.Sprintf("Error exporting logs: %v", err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.FileName(time.Now())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("Client went away during export")
		return
	}

	log.Info().
		Str("format", string(result.Format)).
		Int("rows", result.RowCount).
		Dur("duration", result.Duration).
		Msg("Export completed")
}
