package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/api"
	"github.com/your-username/logsgate/internal/config"
	"github.com/your-username/logsgate/internal/database"
	"github.com/your-username/logsgate/internal/export"
	"github.com/your-username/logsgate/internal/ingestion"
	"github.com/your-username/logsgate/internal/logger"
	"github.com/your-username/logsgate/internal/websocket"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Str("version", version).Msg("Starting logsgate")

	// One client for the whole process, shared by ingest and query
	backend, err := database.New(cfg.Elasticsearch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Elasticsearch client")
	}

	tracker := newTracker(cfg.Redis)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	submitter := ingestion.NewSubmitter(backend, tracker, wsHub, ingestion.SubmitterOptions{
		QueueSize:    cfg.Ingest.QueueSize,
		Workers:      cfg.Ingest.Workers,
		MaxAttempts:  cfg.Ingest.MaxAttempts,
		RetryBackoff: cfg.Ingest.RetryBackoff,
	})

	router := api.NewRouter(api.RouterDeps{
		Backend:        backend,
		Ingest:         ingestion.NewHTTPHandler(backend, submitter, wsHub, cfg.Ingest.MaxBodyBytes),
		Tracker:        tracker,
		Hub:            wsHub,
		Exporter:       export.NewExporter(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}

		// accepted batches are still indexed before exit
		if err := submitter.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Int("queued", submitter.QueueDepth()).Msg("Submission queue not drained")
		}

		stop()
		if closer, ok := tracker.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close submission tracker")
			}
		}
		close(done)
	}()

	log.Info().Str("port", cfg.Server.Port).Msg("Server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	<-done
	log.Info().Msg("Server stopped")
}

func newTracker(cfg config.RedisConfig) ingestion.Tracker {
	if cfg.URL == "" {
		log.Info().Dur("ttl", cfg.SubmissionTTL).Msg("Tracking submissions in memory")
		return ingestion.NewMemoryTracker(cfg.SubmissionTTL)
	}

	tracker, err := ingestion.NewRedisTracker(cfg.URL, cfg.SubmissionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect submission tracker to Redis")
	}
	log.Info().Dur("ttl", cfg.SubmissionTTL).Msg("Tracking submissions in Redis")
	return tracker
}
