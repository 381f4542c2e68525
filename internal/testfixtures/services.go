package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing engines and services that
// share one store, a deterministic clock and deterministic holder tokens.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Storage     *memory.Storage
	Occupancy   *persistence.OccupancyStore
	Archiver    *application.HistoryArchiver
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory over a fresh in-memory store.
// The store is closed when the test finishes.
func NewServiceFactory(tb testing.TB, opts ...ServiceFactoryOption) *ServiceFactory {
	tb.Helper()
	storage := memory.New()
	tb.Cleanup(func() { _ = storage.Close() })

	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("token"),
		Storage:     storage,
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("token")
	}
	factory.Occupancy = persistence.NewOccupancyStore(factory.Storage)
	factory.Archiver = application.NewHistoryArchiverWithLogger(factory.Occupancy, factory.Logger)
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the holder token generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every constructed service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// EngineDeps overrides parts of an engine built by the factory.
type EngineDeps struct {
	Store    application.OccupancyStore
	Archiver application.Archiver
	Cache    application.SessionCache
}

// NewEngine builds an engine for faculty on the shared store.
func (f *ServiceFactory) NewEngine(tb testing.TB, faculty FacultyFixture, deps EngineDeps) *application.SessionEngine {
	tb.Helper()
	var store application.OccupancyStore = f.Occupancy
	if deps.Store != nil {
		store = deps.Store
	}
	var archiver application.Archiver = f.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	engine, err := application.NewSessionEngine(application.EngineConfig{
		Principal: application.Principal{FacultyID: faculty.ID, FacultyName: faculty.Name},
		Store:     store,
		Archiver:  archiver,
		Cache:     deps.Cache,
		Now:       f.Clock.NowFunc(),
		NewToken:  f.IDGenerator.NextFunc(),
		Logger:    f.Logger,
	})
	if err != nil {
		tb.Fatalf("NewSessionEngine: %v", err)
	}
	return engine
}

// NewScheduleCatalog builds a catalog over the factory's schedule table.
func (f *ServiceFactory) NewScheduleCatalog(ttl time.Duration) *application.ScheduleCatalog {
	return application.NewScheduleCatalogWithLogger(f.Storage, ttl, f.Clock.NowFunc(), f.Logger)
}

// NewRoomStatusService builds the dashboard read service.
func (f *ServiceFactory) NewRoomStatusService() *application.RoomStatusService {
	return application.NewRoomStatusServiceWithLogger(f.Occupancy, f.Logger)
}

// SeedSchedules inserts catalog rows directly into the store.
func (f *ServiceFactory) SeedSchedules(tb testing.TB, entries ...persistence.ScheduleEntry) {
	tb.Helper()
	for _, entry := range entries {
		if err := f.Storage.PutSchedule(context.Background(), entry); err != nil {
			tb.Fatalf("seed schedule %s: %v", entry.ID, err)
		}
	}
}

// Candidate returns entry as a session candidate, failing the test on a
// malformed time range.
func Candidate(tb testing.TB, entry persistence.ScheduleEntry) application.Session {
	tb.Helper()
	session, err := application.SessionFromSchedule(entry)
	if err != nil {
		tb.Fatalf("SessionFromSchedule(%s): %v", entry.ID, err)
	}
	return session
}
