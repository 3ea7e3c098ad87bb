package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"discussion-facilitator/backend/pkg/config"
	"discussion-facilitator/backend/pkg/di"
	"discussion-facilitator/backend/pkg/logger"
	"discussion-facilitator/backend/pkg/router"
)

func main() {
	// Loads .env when present
	cfg := config.New()

	log := logger.New(logger.ConfigFrom(cfg.Logging.Level, cfg.Logging.Format))
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.LogError(err, "Invalid configuration")
		os.Exit(1)
	}

	log.Info("Starting discussion facilitator",
		"version", os.Getenv("APP_VERSION"),
		"env", cfg.Server.Env,
		"db_driver", cfg.Database.Driver,
		"threshold", cfg.Facilitator.Threshold,
	)

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.New(ctx, cfg, db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	if err := container.Start(ctx); err != nil {
		log.LogError(err, "Failed to start background workers")
		os.Exit(1)
	}

	r := router.New(container)
	if err := r.SetupRoutes(); err != nil {
		log.LogError(err, "Failed to set up routes")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	if container.GRPC != nil {
		go func() {
			if err := container.GRPC.ListenAndServe(ctx, ":"+cfg.GRPC.Port); err != nil {
				log.LogError(err, "gRPC health server failed")
			}
		}()
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	cancel()
	r.Close()

	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server exited gracefully")
}
