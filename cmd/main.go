package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/internal/adapters/config"
	"backoffice/internal/adapters/errors/noop"
	"backoffice/internal/adapters/errors/sentry"
	"backoffice/internal/api"
	"backoffice/internal/api/health"
	"backoffice/internal/dispatch"
	"backoffice/internal/engine"
	"backoffice/internal/tools"
	"backoffice/pkg/errors"
	"backoffice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Tool catalog, dispatcher, and execution engine
	registry := tools.DefaultRegistry()
	dispatcher := dispatch.NewHTTPDispatcher(cfg.RemoteAPI, cfg.Bridge, log)
	eng := engine.New(registry, dispatcher, cfg.Engine, log)

	// HTTP API
	healthHandler := health.New(log, nil, cfg.App.Name, cfg.Server.Version)
	toolsHandler := api.NewToolsHandler(registry, dispatcher, eng, log)
	server := api.NewServer(api.ServerConfig{
		Port:        cfg.Server.Port,
		ServiceName: cfg.App.Name,
		Version:     cfg.Server.Version,
		APIKey:      cfg.Server.APIKey,
	}, healthHandler, toolsHandler, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(server, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(server *api.Server, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown failed: %v", err)
	}

	if errorTracker != nil {
		if err := errorTracker.Flush(shutdownCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
