package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/api"
	"github.com/rohits-web03/meshforge/internal/api/handlers"
	"github.com/rohits-web03/meshforge/internal/config"
	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/pipeline"
	"github.com/rohits-web03/meshforge/internal/progress"
	"github.com/rohits-web03/meshforge/internal/repositories"
	"github.com/rohits-web03/meshforge/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// @title Meshforge API
// @version 1.0
// @description Turns photos into 3D models and keeps each user's saved collection.
// @host localhost:8080
// @BasePath /
func main() {
	cfg := config.Envs
	logger := telemetry.NewLogger(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.ConnectDatabase(cfg.DB_URL, logger)
	if err != nil {
		return err
	}

	store, err := repositories.NewR2Store(cfg.R2, logger)
	if err != nil {
		return err
	}

	estimator := progress.DefaultEstimator()
	estimator.Total = cfg.Generation.EstimateWindow
	estimator.Cap = cfg.Generation.CapPercent

	registry := generation.NewRegistry(
		generation.NewClient(cfg.Generation, logger),
		cfg.Generation.Retention,
		logger,
		generation.WithInterval(cfg.Generation.TickInterval),
		generation.WithEstimator(estimator),
	)
	go registry.RunJanitor(ctx, time.Minute)

	assets := repositories.NewAssetRepository(db)
	pipe := pipeline.New(
		assets,
		store,
		pipeline.NewHTTPFetcher(cfg.Pipeline.FetchTimeout, cfg.Pipeline.MaxBlobBytes),
		pipeline.WithLogger(logger),
		pipeline.WithTransferTimeout(cfg.Pipeline.UploadTimeout),
	)

	router := api.SetupRouter(ctx, cfg, api.Handlers{
		Auth:        handlers.NewAuthHandler(repositories.NewUserRepository(db), cfg.JWTSecret, cfg.Environment == "production", logger),
		Generations: handlers.NewGenerationHandler(registry, logger),
		Models:      handlers.NewModelHandler(pipe, assets, store, registry, logger),
	}, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
		// Uploads of four photos and long polls need more than the usual budget.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting meshforge server", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on port %s: %w", cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	// Drain deferred blob uploads.
	if err := pipe.WaitContext(shutdownCtx); err != nil {
		logger.Warn("background uploads still running at exit", zap.Error(err))
	}
	return nil
}
