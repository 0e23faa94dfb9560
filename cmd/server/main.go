package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"courier/internal/app"
	"courier/internal/platform/config"
	"courier/internal/platform/logger"
)

// main loads configuration, wires the app and runs it until SIGINT or
// SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.LogConfig{Format: "json", Level: "info"}).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	log.Info("starting courier", "addr", cfg.Server.Addr, "strict_transitions", cfg.StrictTransitions)
	if err := a.Run(ctx); err != nil {
		log.Error("courier stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	log.Info("courier stopped")
}
