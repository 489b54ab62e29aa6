package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/ingestion"
	"github.com/your-username/logsgate/internal/models"
	"github.com/your-username/logsgate/internal/monitoring"
	"github.com/your-username/logsgate/internal/querybuilder"
	"github.com/your-username/logsgate/pkg/response"
)

// HealthCheck reports whether the search backend is reachable
func HealthCheck(backend database.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}

		code := http.StatusOK
		if err := backend.Health(ctx); err != nil {
			status["status"] = "error"
			status["elasticsearch"] = "unhealthy"
			status["error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["elasticsearch"] = "healthy"
		}

		response.JSON(w, code, status)
	}
}

// QueryLogs translates the filter parameters into a bool query and returns
// the backend's hits untouched.
func QueryLogs(backend database.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits, err := search(r.Context(), backend, r.URL.Query())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, fmt.Sprintf("Error executing query: %v", err))
			return
		}

		response.JSON(w, http.StatusOK, map[string]interface{}{
			"logs": hits,
		})
	}
}

// SubmissionStatus returns the tracked state of an ingest submission
func SubmissionStatus(tracker ingestion.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sub, err := tracker.Get(r.Context(), id)
		if errors.Is(err, ingestion.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "Submission not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("submission_id", id).Msg("Failed to load submission")
			response.Error(w, http.StatusInternalServerError, fmt.Sprintf("Error loading submission: %v", err))
			return
		}

		response.JSON(w, http.StatusOK, sub)
	}
}

func search(ctx context.Context, backend database.Backend, params url.Values) ([]json.RawMessage, error) {
	filter := models.NewQueryFilter(params, querybuilder.ValueParams())
	query := querybuilder.Build(filter)

	start := time.Now()
	hits, err := backend.Search(ctx, database.LogsIndex, query)
	elapsed := time.Since(start)
	monitoring.RecordQuery(elapsed.Seconds(), err)

	if err != nil {
		log.Error().Err(err).Int("clauses", len(query.Clauses())).Msg("Query failed")
		return nil, err
	}

	log.Debug().
		Bool("match_all", filter.IsEmpty()).
		Int("clauses", len(query.Clauses())).
		Int("hits", len(hits)).
		Dur("duration", elapsed).
		Msg("Query executed")
	return hits, nil
}
