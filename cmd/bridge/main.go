package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backoffice/internal/adapters/config"
	"backoffice/internal/adapters/postgres"
	"backoffice/internal/bridge"
	repo "backoffice/internal/repository/postgres"
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
	log.Infof("Starting bridge in %s mode", cfg.App.Env)

	if cfg.Bridge.Secret == "" {
		log.Fatal("BRIDGE_SECRET must be configured")
	}

	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pgClient.Close()

	records := repo.NewRecordRepository(pgClient.DB())
	server := bridge.NewServer(cfg.Bridge, records, pgClient, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Bridge server error: %v", err)
		}
	}()

	waitForShutdown(server, log)
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(server *bridge.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Bridge shutdown failed: %v", err)
	}

	log.Info("Shutdown complete")
}
