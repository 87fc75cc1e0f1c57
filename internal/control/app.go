// Package control assembles the engine and its supporting services
// from configuration and manages their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/livefeed/internal/conn"
	"github.com/vietddude/livefeed/internal/core/config"
	"github.com/vietddude/livefeed/internal/engine"
	"github.com/vietddude/livefeed/internal/health"
	redisclient "github.com/vietddude/livefeed/internal/infra/redis"
	"github.com/vietddude/livefeed/internal/infra/storage"
	"github.com/vietddude/livefeed/internal/infra/storage/memory"
	"github.com/vietddude/livefeed/internal/infra/storage/postgres"
	"github.com/vietddude/livefeed/internal/resilience/breaker"
)

// App is the main application struct that manages the engine lifecycle.
type App struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	healthServer *health.Server
	journal      storage.ErrorJournal
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	// 1. Initialize the error journal
	var journal storage.ErrorJournal
	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations. Goose needs the raw *sql.DB that sqlx wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		journal = postgres.NewErrorJournal(db)
		slog.Info("Using PostgreSQL error journal")
	} else {
		journal = memory.NewErrorJournal()
		slog.Info("Using in-memory error journal")
	}

	// 2. Initialize the snapshot cache
	var redisClient *redisclient.Client
	var snapshots engine.SnapshotStore
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		snapshots = redisClient
		slog.Info("Snapshot cache enabled")
	}

	// 3. Assemble the engine
	eng := engine.New(engine.Config{
		Conn: conn.Config{
			BaseDelay:            cfg.Resilience.BaseDelay,
			MaxDelay:             cfg.Resilience.MaxDelay,
			MaxReconnectAttempts: cfg.Resilience.MaxReconnectAttempts,
			PollingInterval:      cfg.Channel.PollingInterval,
			ProbeEvery:           cfg.Channel.ProbeEvery,
			PollEndpoint:         cfg.Channel.PollEndpoint,
		},
		Breaker: breaker.Config{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			ResetTimeout:     cfg.Resilience.ResetTimeout,
		},
	}, engine.Options{
		Journal:   journal,
		Snapshots: snapshots,
		Logger:    log,
	})

	// 4. Health monitoring
	monitor := health.NewMonitor(eng, cfg.Server.HealthCheckInterval)
	healthServer := health.NewServer(monitor, journal, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		engine:       eng,
		healthServer: healthServer,
		journal:      journal,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Engine exposes the assembled engine for consumers embedding the App.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Start connects the engine and serves the health endpoints.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Channel.URL == "" {
		return fmt.Errorf("channel url is not configured")
	}

	a.engine.Start(a.cfg.Channel.URL)
	a.log.Info("Engine started", "url", a.cfg.Channel.URL, "port", a.cfg.Server.Port)

	go func() {
		if err := a.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts down the engine and releases all resources.
func (a *App) Stop(ctx context.Context) error {
	a.engine.Stop()

	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Warn("Health server shutdown failed", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Redis close failed", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Database close failed", "error", err)
		}
	}

	a.log.Info("Engine stopped")
	return nil
}
