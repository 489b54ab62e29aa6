package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/export"
	"github.com/your-username/logsgate/internal/ingestion"
	"github.com/your-username/logsgate/internal/monitoring"
	"github.com/your-username/logsgate/internal/websocket"
)

// RouterDeps are the long-lived components the HTTP surface is built from
type RouterDeps struct {
	Backend        database.Backend
	Ingest         *ingestion.HTTPHandler
	Tracker        ingestion.Tracker
	Hub            *websocket.Hub
	Exporter       *export.Exporter
	AllowedOrigins []string
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(monitoring.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// the stream is long-lived, keep it out of the request timeout
	if deps.Hub != nil {
		r.Get("/stream", websocket.HandleWebSocket(deps.Hub, deps.AllowedOrigins))
	}
	r.Handle("/metrics", promhttp.Handler())

	exports := NewExportHandler(deps.Backend, deps.Exporter)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", HealthCheck(deps.Backend))
		r.Post("/ingest", deps.Ingest.IngestLogs())
		r.Get("/query", QueryLogs(deps.Backend))
		r.Get("/query/export", exports.ExportLogs)
		r.Get("/submissions/{id}", SubmissionStatus(deps.Tracker))
	})

	return r
}
