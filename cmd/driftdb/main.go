// Command driftdb runs the local persistence service.
//
// It loads configuration, opens the on-disk store for this installation,
// and holds it open until interrupted. Shutdown is graceful: the store is
// closed before the process exits so the exclusive lock is released.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/driftdb/internal/infrastructure/config"
	"github.com/nerrad567/driftdb/internal/infrastructure/logging"
	"github.com/nerrad567/driftdb/internal/local"
	_ "github.com/nerrad567/driftdb/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "driftdb: %v\n", err)
		os.Exit(1)
	}
}

// run wires the application together and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Resolve the installation persistence key
//  3. Create the logger
//  4. Open the store (acquires exclusive lock, runs migrations)
//  5. Wait for shutdown signal
func run(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	key, err := config.EnsurePersistenceKey(cfg)
	if err != nil {
		return fmt.Errorf("resolving persistence key: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting driftdb",
		"project_id", cfg.Client.ProjectID,
		"database_id", cfg.Client.DatabaseID,
	)

	store := local.New(local.Config{
		Dir:            cfg.Storage.Dir,
		PersistenceKey: key,
		ProjectID:      cfg.Client.ProjectID,
		DatabaseID:     cfg.Client.DatabaseID,
		BusyTimeout:    cfg.Storage.BusyTimeout,
	})
	store.SetLogger(logger.With("component", "local"))

	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting persistence: %w", err)
	}

	logger.Info("driftdb ready")

	<-ctx.Done()

	logger.Info("shutting down")
	if err := store.Shutdown(); err != nil {
		return fmt.Errorf("shutting down persistence: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// getConfigPath returns the config file path, honouring DRIFTDB_CONFIG.
func getConfigPath() string {
	if path := os.Getenv("DRIFTDB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
