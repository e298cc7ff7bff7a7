package main

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/handlers"
	"github.com/huangang/teamsync/internal/middleware"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/internal/utils"
	"github.com/huangang/teamsync/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg      *config.Config
	writer   services.SnapshotWriter
	worker   *services.SnapshotWorker
	store    *services.StateStore
	presence *services.SessionRegistry
	hub      *services.ChannelHub
	router   *services.EventRouter
	backup   *services.BackupService
	limiter  *middleware.RateLimiter

	authHandler      *handlers.AuthHandler
	syncHandler      *handlers.SyncHandler
	sseHandler       *handlers.SSEHandler
	stateHandler     *handlers.StateHandler
	assistantHandler *handlers.AssistantHandler
	healthHandler    *handlers.HealthHandler
	metricsHandler   *handlers.MetricsHandler
}

// bootstrap loads state and wires the sync services, schedulers and handlers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	persister, err := openPersister(&cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	// Uses Redis write-behind if enabled, otherwise saves inline
	writer := services.NewSnapshotWriter(cfg, persister)

	var worker *services.SnapshotWorker
	if writer.IsAsync() {
		worker = services.NewSnapshotWorker(&cfg.Redis, persister)
		if worker != nil {
			if err := worker.Start(); err != nil {
				logger.Fatalf("Failed to start snapshot worker: %v", err)
			}
			// Snapshots queued by the previous run must land before the load.
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.DrainTimeoutSec)*time.Second)
			if err := worker.Drain(ctx); err != nil {
				logger.Fatalf("Failed to drain snapshot queue: %v", err)
			}
			cancel()
		}
	}

	store := services.LoadStateStore(context.Background(), persister, writer)
	counts := store.Counts()
	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Int("projects", counts.Projects).
		Int("users", counts.Users).
		Int("messages", counts.Messages).
		Msg("State loaded")

	policies := protocol.DefaultPolicies()
	if cfg.Sync.EchoUpdates {
		policies = policies.WithEchoUpdates()
	}

	presence := services.NewSessionRegistry()
	hub := services.NewChannelHub(cfg.Sync.ClientBuffer)
	router := services.NewEventRouter(store, presence, hub, policies)

	var backup *services.BackupService
	if cfg.Backup.Enabled {
		backup = services.NewBackupService(store, &cfg.Backup)
		if err := backup.StartScheduler(); err != nil {
			logger.Warn().Err(err).Msg("Backups disabled")
			backup = nil
		}
	}

	calendar := services.NewCalendarService(&cfg.Calendar)
	assistant := services.NewAssistantService(services.NewLLMClient(&cfg.AI), store, calendar)

	return &appServices{
		cfg:      cfg,
		writer:   writer,
		worker:   worker,
		store:    store,
		presence: presence,
		hub:      hub,
		router:   router,
		backup:   backup,
		limiter:  middleware.NewRateLimiter(cfg.AI.RateLimit, cfg.AI.Burst),

		authHandler:      handlers.NewAuthHandler(services.NewAuthService(store, &cfg.JWT)),
		syncHandler:      handlers.NewSyncHandler(router),
		sseHandler:       handlers.NewSSEHandler(router),
		stateHandler:     handlers.NewStateHandler(store),
		assistantHandler: handlers.NewAssistantHandler(assistant),
		healthHandler:    handlers.NewHealthHandler(hub, presence, writer, cfg.Storage.Driver),
		metricsHandler:   handlers.NewMetricsHandler(store, hub, presence, writer),
	}
}

func openPersister(cfg *config.StorageConfig) (services.Persister, error) {
	switch cfg.Driver {
	case "", "file":
		return services.NewFileStore(cfg.Path), nil
	case "sqlite", "mysql", "postgres":
		db, err := models.OpenDB(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return services.NewDBStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.backup != nil {
		s.backup.StopScheduler()
	}
	s.limiter.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.writer != nil {
		s.writer.Close()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
}
