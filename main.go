package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/db"
	"github.com/aurachat/empathy-crawler-service/common/logger"
	"github.com/aurachat/empathy-crawler-service/common/messaging"
	"github.com/aurachat/empathy-crawler-service/common/storage"
	"github.com/aurachat/empathy-crawler-service/common/work"

	"github.com/rs/zerolog/log"

	"github.com/joho/godotenv"
)

// crawlStreamName is the JetStream stream carrying crawl progress events.
const crawlStreamName = "CRAWL_EVENTS"

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DATABASES
	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	// Initialize zerolog database hooks
	logger.InitializeLogging(dbConn)
	log.Info().Msg("Zerolog database hooks initialized")

	// Surface leases left behind by a crashed instance. They expire on
	// their own; the log line is the operator's cue to investigate.
	if stale, err := work.NewRunManager(dbConn).ListRunningRuns(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to list crawl leases")
	} else if len(stale) > 0 {
		log.Warn().Strs("leases", stale).Msg("Crawl leases still held from a previous instance")
	}

	// INITIATE NATS CLIENT
	natsClient, err := messaging.SetupNatsBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup NATS client")
	}
	defer natsClient.Close()

	// Make sure the progress event stream exists before anything publishes to it
	if _, err := messaging.EnsureStream(ctx, natsClient, crawlStreamName, []string{
		messaging.SubjectCrawlStarted,
		messaging.SubjectBatchCompleted,
		messaging.SubjectCrawlCompleted,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure crawl event stream")
	}

	// gcs mirror for batch files, optional
	if cfg.GCS.Bucket != "" {
		gcsStorage, err := storage.NewGCSStorage(ctx, storage.GCSConfig{
			ProjectID:       cfg.GCS.ProjectID,
			CredentialsFile: cfg.GCS.CredentialsFile,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup GCS storage")
		}
		if err := storage.SetStorageClient(gcsStorage); err != nil {
			log.Fatal().Err(err).Msg("Failed to set GCS storage client")
		}
	}

	// INITIATE SERVER
	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	// Inject dependencies
	server.SetDB(dbConn)
	server.SetNatsClient(natsClient)

	// Setup routes
	server.setupRoute()

	// Start server in a goroutine
	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")

	// Wait for shutdown signal
	<-shutdown
	log.Info().Msg("Shutdown signal received")

	// Create a timeout context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
}
