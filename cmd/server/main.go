// Package main provides the API server entry point for the KOL dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kol-dashboard/internal/api"
	"github.com/kol-dashboard/internal/app"
	"github.com/kol-dashboard/internal/config"
	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/worker"
)

func main() {
	fmt.Println("KOL Dashboard API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLoggerWithOptions(logging.Options{
		Level:      logging.ParseLogLevel(cfg.Logging.Level),
		Format:     logging.ParseLogFormat(cfg.Logging.Format),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	logger := logging.GetGlobalLogger().WithField("component", "server")
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	// Start the refresh scheduler
	var scheduler *worker.RefreshScheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = worker.NewRefreshScheduler(&worker.RefreshSchedulerConfig{
			Runner:     components.Refresh,
			Interval:   cfg.Scheduler.Interval,
			RunOnStart: cfg.Scheduler.RunOnStart,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create refresh scheduler")
		}
		if err := scheduler.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start refresh scheduler")
		}
	} else {
		logger.Warn("Refresh scheduler disabled; POST /api/refresh will return 503")
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, components.Rollup, scheduler)
	server.SetBreakers(components.Breakers)
	if components.Budget != nil {
		server.SetCreditUsageReporter(components.Budget)
	}
	if components.Archive != nil {
		server.SetTradeHistory(components.Archive)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down server...")
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Refresh scheduler did not stop cleanly")
		}
	}

	logger.Info("Server exited")
}
