// Identity Core - identity and access service for the player portal.
//
// This is the main entry point. Identity Core provides registration, login
// with optional TOTP two-factor, refresh token rotation, role-scoped player
// profile visibility, and an audit trail, backed by SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/contextawareid/identity-core/migrations"

	"github.com/contextawareid/identity-core/internal/api"
	"github.com/contextawareid/identity-core/internal/audit"
	"github.com/contextawareid/identity-core/internal/identity"
	"github.com/contextawareid/identity-core/internal/infrastructure/config"
	"github.com/contextawareid/identity-core/internal/infrastructure/database"
	"github.com/contextawareid/identity-core/internal/infrastructure/logging"
	"github.com/contextawareid/identity-core/internal/profile"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Identity Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	users := identity.NewUserRepository(db.DB)
	sessions := identity.NewSessionRepository(db.DB)
	profiles := profile.NewRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Asynchronous audit recorder; drained on shutdown
	recorder := audit.NewRecorder(auditRepo, log, cfg.Audit.BufferSize)
	defer func() {
		recorder.Close()
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn("audit events dropped during run", "count", dropped)
		}
	}()

	tokens := identity.NewTokenManager(
		cfg.Security.AccessSecret,
		cfg.Security.RefreshSecret,
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)

	svc := identity.NewService(identity.ServiceDeps{
		Users:      users,
		Sessions:   sessions,
		Tokens:     tokens,
		Profiles:   profiles,
		Recorder:   recorder,
		Logger:     log,
		TOTPIssuer: cfg.Security.TOTPIssuer,
	})

	if cfg.Security.SeedDeveloper {
		if _, seedErr := identity.SeedDeveloper(ctx, users, log); seedErr != nil {
			return fmt.Errorf("seeding developer account: %w", seedErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Identity: svc,
		Tokens:   tokens,
		Users:    users,
		Sessions: sessions,
		Profiles: profiles,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Block until interrupted
	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := server.Close(); err != nil {
		log.Error("error shutting down API server", "error", err)
	}

	log.Info("Identity Core stopped")
	return nil
}

// getConfigPath returns the configuration file path from the command line,
// the IDCORE_CONFIG environment variable, or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	if path := os.Getenv("IDCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
