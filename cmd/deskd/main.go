package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/deskd/internal/api"
	"github.com/danghamo/deskd/internal/desk"
	"github.com/danghamo/deskd/pkg/config"
)

func main() {
	// Initialize configuration and logger
	cfg, log, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure logger is flushed on exit
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting deskd",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Server.Environment),
	)

	// Desk collaborators: idasen config file and idasen CLI
	source := desk.NewYAMLConfigSource(cfg.Desk.ConfigPath)
	mover := desk.NewExecMover(cfg.Desk.Binary, log)

	controllerConfig := desk.ControllerConfig{
		Nagging: cfg.Nag.Enabled,
		Policy:  make(desk.DwellPolicy),
	}
	if cfg.Nag.Enabled {
		controllerConfig.TogglePair = [2]desk.Position{
			desk.Position(cfg.Nag.TogglePositions[0]),
			desk.Position(cfg.Nag.TogglePositions[1]),
		}
	}
	for name, dwell := range cfg.Nag.DwellDurations() {
		controllerConfig.Policy[desk.Position(name)] = dwell
	}

	// Create API server
	serverConfig := api.ServerConfig{
		Port:         cfg.Server.Port,
		Host:         cfg.Server.Host,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams must not be cut off by a write deadline
		IdleTimeout:  60 * time.Second,
	}

	apiServer := api.NewServer(serverConfig, controllerConfig, log, source, mover)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down...")
		cancel()
	}()

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		log.Error("Server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("deskd gracefully stopped")
}
