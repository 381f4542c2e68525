package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/storetest"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir := t.TempDir()
	config := DefaultConfig(filepath.Join(dir, "roomit.db"))
	storage, err := OpenConfig(config, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}

	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return storage
}

func TestStorageContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		return newTestStorage(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestStoragePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roomit.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	written, err := first.Write(ctx, persistence.RoomKey("R101"), []byte(`{"room":"R101"}`))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	got, err := second.Read(ctx, persistence.RoomKey("R101"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Revision != written.Revision {
		t.Fatalf("expected revision %d, got %d", written.Revision, got.Revision)
	}

	next, err := second.Write(ctx, persistence.RoomKey("R202"), []byte(`{}`))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if next.Revision <= written.Revision {
		t.Fatalf("revision went backwards after reopen: %d <= %d", next.Revision, written.Revision)
	}
}

func TestPruneKeepsEventsWatchersHaveNotRead(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	for _, room := range []string{"R1", "R2", "R3"} {
		if _, err := storage.Write(ctx, persistence.RoomKey(room), []byte(`{}`)); err != nil {
			t.Fatalf("Write %s: %v", room, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := storage.Watch(watchCtx, "rooms/")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	removed, err := storage.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 pruned events, got %d", removed)
	}

	written, err := storage.Write(ctx, persistence.RoomKey("R4"), []byte(`{}`))
	if err != nil {
		t.Fatalf("Write R4: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Entry.Key != persistence.RoomKey("R4") || ev.Entry.Revision != written.Revision {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for R4 event")
	}

	cancel()
	for range events {
	}

	if removed, err = storage.Prune(ctx); err != nil {
		t.Fatalf("second Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned event once the watcher left, got %d", removed)
	}
	var remaining int
	if err := storage.pool.DB().GetContext(ctx, &remaining, `SELECT COUNT(*) FROM kv_events`); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected only the newest event to remain, got %d", remaining)
	}

	next, err := storage.Write(ctx, persistence.RoomKey("R5"), []byte(`{}`))
	if err != nil {
		t.Fatalf("Write R5: %v", err)
	}
	if next.Revision <= written.Revision {
		t.Fatalf("revision went backwards after prune: %d <= %d", next.Revision, written.Revision)
	}
}

func TestPruneAfterClose(t *testing.T) {
	storage := newTestStorage(t)
	_ = storage.Close()
	if _, err := storage.Prune(context.Background()); !errors.Is(err, persistence.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestScheduleRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	entry := persistence.ScheduleEntry{
		ID:                 "s-1",
		FacultyID:          "fac-1",
		FacultyName:        "Dr. Reyes",
		SchoolYear:         "2024-2025",
		Semester:           "1st",
		SubjectCode:        "CS101",
		SubjectDescription: "Intro to Computing",
		Course:             "BSCS",
		CreditUnits:        "3",
		Day:                "Mon/Wed",
		Time:               "8:00 AM - 9:30 AM",
		Building:           "Main",
		Room:               "R101",
	}
	if err := storage.PutSchedule(ctx, entry); err != nil {
		t.Fatalf("PutSchedule failed: %v", err)
	}
	if err := storage.PutSchedule(ctx, entry); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	fetched, err := storage.GetSchedule(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if fetched != entry {
		t.Fatalf("unexpected schedule: %+v", fetched)
	}

	other := entry
	other.ID = "s-2"
	other.Semester = "2nd"
	if err := storage.PutSchedule(ctx, other); err != nil {
		t.Fatalf("PutSchedule failed: %v", err)
	}

	list, err := storage.ListSchedules(ctx, persistence.ScheduleFilter{FacultyID: "fac-1", Semester: "1ST"})
	if err != nil {
		t.Fatalf("ListSchedules failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "s-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := storage.GetSchedule(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()
	if mapper.MapError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if err := mapper.MapError(errors.New("database is locked")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := mapper.MapError(errors.New("UNIQUE constraint failed: kv.key")); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
