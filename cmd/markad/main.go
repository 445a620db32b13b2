// Package main runs the Marka proof-of-existence service: an HTTP API
// that fingerprints files, anchors fingerprints on the TON blockchain
// and verifies the anchoring transactions against the toncenter indexer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markaproof/marka/internal/app"
	"github.com/markaproof/marka/internal/config"
	"github.com/markaproof/marka/pkg/logger"
)

func main() {
	host := flag.String("host", "", "listen host (overrides SERVER_HOST)")
	port := flag.Int("port", 0, "listen port (overrides SERVER_PORT)")
	databaseURL := flag.String("database-url", "", "postgres connection string (overrides DATABASE_URL)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *databaseURL != "" {
		cfg.DatabaseURL = *databaseURL
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithField("component", "markad")

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("server failed")
		os.Exit(1)
	}

	log.Info("shutting down")
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("shutdown finished with errors")
	}
}
