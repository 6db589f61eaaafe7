package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mesh3d/internal/compute"
	"mesh3d/internal/http/handlers"
	"mesh3d/internal/http/httpapi"
	"mesh3d/internal/imageprep"
	"mesh3d/internal/infra"
	"mesh3d/internal/jobs"
	"mesh3d/internal/jobstore"
	"mesh3d/internal/storage"
	"mesh3d/internal/sweeper"
	"mesh3d/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	engine := buildEngine(cfg, &logger)
	store := jobstore.New()

	sup := worker.New(worker.Config{
		QueueDepth:       cfg.MaxQueueDepth,
		WatchdogInterval: cfg.WatchdogInterval,
	}, store, engine, imageprep.New(), files, logger)
	sup.Start(ctx)

	sw := sweeper.New(store, files, cfg.RetentionWindow, logger)
	if err := sw.Start(cfg.SweepInterval); err != nil {
		logger.Fatal().Err(err).Msg("failed to start retention sweeper")
	}
	defer sw.Stop()

	svc := jobs.NewService(jobs.Config{
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		WaitTimeout:   cfg.SyncWaitTimeout,
	}, store, sup, files, logger)

	app := handlers.NewApp(svc, engine, sup, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Bool("model_loaded", engine.Loaded()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildEngine(cfg *infra.Config, logger *infra.Logger) compute.Engine {
	if cfg.InferenceBaseURL == "" {
		logger.Warn().Msg("INFERENCE_BASE_URL missing, using synthetic generation")
		return compute.NewSynthetic()
	}
	client, err := compute.NewClient(compute.Options{
		BaseURL: cfg.InferenceBaseURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure inference client")
	}
	return client
}
