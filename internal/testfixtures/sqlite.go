package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/sqlite"
)

// SQLiteHarness provides store access backed by a temporary SQLite database
// for integration-style tests.
type SQLiteHarness struct {
	Storage   *sqlite.Storage
	Occupancy *persistence.OccupancyStore

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "roomit.db")
	storage, err := sqlite.OpenConfig(sqlite.DefaultConfig(path), 10*time.Millisecond)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:   storage,
		Occupancy: persistence.NewOccupancyStore(storage),
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedSchedules inserts entries into the harness catalog.
func (h *SQLiteHarness) SeedSchedules(tb testing.TB, entries ...persistence.ScheduleEntry) {
	tb.Helper()
	for _, entry := range entries {
		if err := h.Storage.PutSchedule(context.Background(), entry); err != nil {
			tb.Fatalf("seed schedule %s: %v", entry.ID, err)
		}
	}
}
