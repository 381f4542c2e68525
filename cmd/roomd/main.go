package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/cache"
	"github.com/example/room-occupancy/internal/config"
	httptransport "github.com/example/room-occupancy/internal/http"
	"github.com/example/room-occupancy/internal/logging"
	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/memory"
	"github.com/example/room-occupancy/internal/persistence/sqlite"
	"github.com/example/room-occupancy/internal/recurrence"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLogger.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("room occupancy API listening", "addr", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// backend is a store that also holds the schedule catalog.
type backend interface {
	persistence.Store
	application.ScheduleStore
	Ping(ctx context.Context) error
}

type service struct {
	backend  backend
	registry *application.EngineRegistry
	catalog  *application.ScheduleCatalog
	handler  http.Handler
}

func (s *service) Close() error {
	return s.backend.Close()
}

func newService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service, error) {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ScheduleSeed != "" {
		if err := seedSchedules(ctx, store, cfg.ScheduleSeed, logger); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	occupancy := persistence.NewOccupancyStore(store)
	archiver := application.NewHistoryArchiverWithLogger(occupancy, logger)
	catalog := application.NewScheduleCatalogWithLogger(store, cfg.CatalogTTL, time.Now, logger)
	rooms := application.NewRoomStatusServiceWithLogger(occupancy, logger)
	calendar := recurrence.NewEngine(cfg.Location)

	registry := application.NewEngineRegistry(func(principal application.Principal) (*application.SessionEngine, error) {
		sessionCache, err := sessionCacheFor(cfg, principal.FacultyID)
		if err != nil {
			return nil, err
		}
		return application.NewSessionEngine(application.EngineConfig{
			Principal: principal,
			Store:     occupancy,
			Archiver:  archiver,
			Cache:     sessionCache,
			Calendar:  calendar,
			Logger:    logger,
		})
	}, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:     httptransport.NewSessionHandler(registry, catalog, logger),
		Schedules:    httptransport.NewScheduleHandler(catalog, logger),
		Rooms:        httptransport.NewRoomHandler(rooms, cfg.AllowedOrigins, logger),
		History:      httptransport.NewHistoryHandler(archiver, logger),
		Health:       store.Ping,
		Authenticate: httptransport.RequireFaculty(logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	return &service{backend: store, registry: registry, catalog: catalog, handler: router}, nil
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil
	default:
		storage, err := sqlite.OpenConfig(sqlite.DefaultConfig(cfg.SQLiteDSN), cfg.WatchInterval)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		if err := storage.Migrate(ctx); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
		return storage, nil
	}
}

func sessionCacheFor(cfg config.Config, facultyID string) (application.SessionCache, error) {
	if cfg.Store == config.StoreMemory || cfg.CacheDir == "" {
		return cache.NewMemoryCache(), nil
	}
	fileCache, err := cache.ForFaculty(cfg.CacheDir, facultyID)
	if err != nil {
		return nil, err
	}
	return fileCache, nil
}

func seedSchedules(ctx context.Context, store application.ScheduleStore, path string, logger *slog.Logger) error {
	entries, err := application.LoadScheduleFile(path)
	if err != nil {
		return err
	}
	report, err := application.NewScheduleSeeder(store, uuid.NewString, logger).Seed(ctx, entries)
	if err != nil {
		return fmt.Errorf("seed schedules: %w", err)
	}
	for label, reason := range report.Skipped {
		logger.Warn("schedule row skipped", "row", label, "reason", reason)
	}
	for _, warning := range report.Warnings {
		logger.Warn("schedule overlap", "detail", warning)
	}
	return nil
}
