package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/models"
	"github.com/your-username/logsgate/internal/monitoring"
	"github.com/your-username/logsgate/pkg/response"
)

// RecordBroadcaster receives every accepted record for the live stream
type RecordBroadcaster interface {
	BroadcastLog(record *models.LogRecord)
}

// HTTPHandler handles HTTP log ingestion
type HTTPHandler struct {
	backend      database.Backend
	submitter    *Submitter
	broadcaster  RecordBroadcaster
	maxBodyBytes int64
}

// NewHTTPHandler creates a new HTTP ingestion handler. broadcaster may be nil.
func NewHTTPHandler(backend database.Backend, submitter *Submitter, broadcaster RecordBroadcaster, maxBodyBytes int64) *HTTPHandler {
	return &HTTPHandler{
		backend:      backend,
		submitter:    submitter,
		broadcaster:  broadcaster,
		maxBodyBytes: maxBodyBytes,
	}
}

type submissionRef struct {
	ID      string                  `json:"id"`
	Status  models.SubmissionStatus `json:"status"`
	Records int                     `json:"records"`
}

type ingestResponse struct {
	Status     json.RawMessage `json:"status"`
	Submission submissionRef   `json:"submission"`
}

// IngestLogs handles POST /ingest. The response acknowledges acceptance
// only; indexing happens afterwards and its outcome is available from
// /submissions/{id}.
func (h *HTTPHandler) IngestLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := ReadBody(w, r, h.maxBodyBytes)
		if err != nil {
			switch {
			case errors.Is(err, ErrBodyTooLarge):
				response.Error(w, http.StatusRequestEntityTooLarge, err.Error())
			case errors.Is(err, ErrUnsupportedEncoding):
				response.Error(w, http.StatusUnsupportedMediaType, err.Error())
			default:
				response.Error(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		records, err := DecodeBatch(body)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				monitoring.RecordIngest(false, verr.Records)
				log.Debug().Err(err).Msg("Rejected invalid ingest batch")
				response.Error(w, http.StatusUnprocessableEntity, verr.Problems)
				return
			}
			log.Debug().Err(err).Msg("Failed to parse ingest request")
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		info, err := h.backend.Info(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Backend liveness check failed")
			response.Error(w, http.StatusServiceUnavailable, "Error reaching Elasticsearch: "+err.Error())
			return
		}

		sub, err := h.submitter.Submit(r.Context(), records)
		if err != nil {
			monitoring.RecordIngest(false, len(records))
			if errors.Is(err, ErrQueueFull) {
				w.Header().Set("Retry-After", "1")
				response.Error(w, http.StatusTooManyRequests, err.Error())
				return
			}
			response.Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		monitoring.RecordIngest(true, len(records))

		if h.broadcaster != nil {
			for i := range records {
				h.broadcaster.BroadcastLog(&records[i])
			}
		}

		response.JSON(w, http.StatusOK, ingestResponse{
			Status: info,
			Submission: submissionRef{
				ID:      sub.ID,
				Status:  sub.Status,
				Records: sub.Records,
			},
		})
	}
}
