package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledgersync/internal/api"
	"github.com/dvloznov/ledgersync/internal/app"
	"github.com/dvloznov/ledgersync/internal/config"
	"github.com/dvloznov/ledgersync/internal/jobs/inmemory"
	"github.com/dvloznov/ledgersync/internal/logger"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

func main() {
	// Parse command-line flags; they override the environment.
	var (
		port    = flag.String("port", "", "HTTP server port (or set PORT env)")
		backend = flag.String("backend", "", "Storage backend: memory, bigquery, mongo or postgres (or set STORE_BACKEND env)")
		catalog = flag.String("catalog", "", "Company catalog YAML file (or set CATALOG_PATH env)")
	)
	flag.Parse()

	log := logger.NewFromConfig(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.Load(ctx, func(key string) string {
		switch {
		case key == "PORT" && *port != "":
			return *port
		case key == "STORE_BACKEND" && *backend != "":
			return *backend
		case key == "CATALOG_PATH" && *catalog != "":
			return *catalog
		}
		return os.Getenv(key)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	stack, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage backend")
	}
	defer stack.Close()

	queue := inmemory.NewQueue(cfg.QueueBuffer, cfg.QueueWorkers, stack.Jobs)
	service := pipeline.NewService(stack.Companies, stack.Jobs, queue, stack.Records)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(service, log, api.Options{SampleDataDir: cfg.SampleDataDir}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Runs outlive the request that started them, so workers get their own
	// context that is only cancelled after the queue drains.
	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorkers()

	if err := queue.Start(workerCtx, stack.Syncer().Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.QueueWorkers).Msg("Started job workers")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("backend", string(cfg.Backend)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		// Stop job queue and wait for in-flight runs
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
			cancelWorkers()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}
