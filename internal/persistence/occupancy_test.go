package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/memory"
)

func newOccupancyStore(t *testing.T) *persistence.OccupancyStore {
	t.Helper()
	storage := memory.New()
	t.Cleanup(func() { _ = storage.Close() })
	return persistence.NewOccupancyStore(storage)
}

func sampleRoom(room string) persistence.RoomRecord {
	return persistence.RoomRecord{
		SessionRecord: persistence.SessionRecord{
			SessionID:   "fac-1|2024-2025|1st|CS101|" + room + "|1718000000000",
			FacultyID:   "fac-1",
			FacultyName: "Dr. Reyes",
			Room:        room,
			Building:    "Main",
			Day:         "Mon/Wed",
			StartTime:   "08:00",
			EndTime:     "09:30",
			SubjectCode: "CS101",
			SchoolYear:  "2024-2025",
			Semester:    "1st",
		},
		HolderToken: "token-1",
	}
}

func TestKeyBuilders(t *testing.T) {
	cases := map[persistence.Key]string{
		persistence.RoomKey("R101"):             "rooms/R101",
		persistence.OccupiedRoomKey("fac-1"):    "users/fac-1/occupiedRoom",
		persistence.AttendingClassKey("fac-1"):  "users/fac-1/attendingClass",
		persistence.HistoryKey("1718000000000"): "history/1718000000000",
	}
	for key, want := range cases {
		if string(key) != want {
			t.Fatalf("expected %s, got %s", want, key)
		}
		if err := key.Validate(); err != nil {
			t.Fatalf("Validate(%s) failed: %v", key, err)
		}
	}
	if leaf := persistence.OccupiedRoomKey("fac-1").Leaf(); leaf != "occupiedRoom" {
		t.Fatalf("unexpected leaf %q", leaf)
	}
	if ns := persistence.RoomKey("R101").Namespace(); ns != persistence.RoomsNamespace {
		t.Fatalf("unexpected namespace %q", ns)
	}
	if persistence.ValidSegment("a/b") || persistence.ValidSegment(" ") {
		t.Fatal("expected invalid segments to be rejected")
	}
}

func TestOccupancyStore_ClaimAndReleaseRoom(t *testing.T) {
	ctx := context.Background()
	store := newOccupancyStore(t)

	if _, err := store.ReadRoom(ctx, "R101"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected free room, got %v", err)
	}

	claimed, err := store.ClaimRoom(ctx, sampleRoom("R101"))
	if err != nil {
		t.Fatalf("ClaimRoom failed: %v", err)
	}
	if _, err := store.ClaimRoom(ctx, sampleRoom("R101")); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict on second claim, got %v", err)
	}

	got, err := store.ReadRoom(ctx, "R101")
	if err != nil {
		t.Fatalf("ReadRoom failed: %v", err)
	}
	if got.HolderToken != "token-1" || got.FacultyID != "fac-1" || got.Revision != claimed.Revision {
		t.Fatalf("unexpected room record: %+v", got)
	}

	if err := store.ReleaseRoom(ctx, "R101", claimed.Revision+1); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale release, got %v", err)
	}
	if err := store.ReleaseRoom(ctx, "R101", 0); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation without revision, got %v", err)
	}
	if err := store.ReleaseRoom(ctx, "R101", claimed.Revision); err != nil {
		t.Fatalf("ReleaseRoom failed: %v", err)
	}

	rooms, err := store.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("expected no occupied rooms, got %+v", rooms)
	}
}

func TestOccupancyStore_Pointer(t *testing.T) {
	ctx := context.Background()
	store := newOccupancyStore(t)

	pointer, err := store.ClaimPointer(ctx, "fac-1", "R101")
	if err != nil {
		t.Fatalf("ClaimPointer failed: %v", err)
	}
	if _, err := store.ClaimPointer(ctx, "fac-1", "R202"); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := store.ReadPointer(ctx, "fac-1")
	if err != nil {
		t.Fatalf("ReadPointer failed: %v", err)
	}
	if got.OccupiedRoom != "R101" || got.AttendingClass {
		t.Fatalf("unexpected pointer: %+v", got)
	}

	if err := store.MarkAttending(ctx, "fac-1"); err != nil {
		t.Fatalf("MarkAttending failed: %v", err)
	}
	got, err = store.ReadPointer(ctx, "fac-1")
	if err != nil {
		t.Fatalf("ReadPointer failed: %v", err)
	}
	if !got.AttendingClass || got.Revision != pointer.Revision {
		t.Fatalf("unexpected pointer after MarkAttending: %+v", got)
	}

	if err := store.ClearPointer(ctx, "fac-1", pointer.Revision); err != nil {
		t.Fatalf("ClearPointer failed: %v", err)
	}
	if _, err := store.ReadPointer(ctx, "fac-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected pointer to be gone, got %v", err)
	}
	if _, err := store.KV().Read(ctx, persistence.AttendingClassKey("fac-1")); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected attending flag to be gone, got %v", err)
	}
}

func TestOccupancyStore_History(t *testing.T) {
	ctx := context.Background()
	store := newOccupancyStore(t)

	ended := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	rec := persistence.HistoryRecord{SessionRecord: sampleRoom("R101").SessionRecord, TimeEnded: ended.UnixMilli()}
	rec.EndedAt = &ended

	if _, err := store.AppendHistory(ctx, "1718011800000", rec); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}
	if _, err := store.AppendHistory(ctx, "1718011800000", rec); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for a taken key, got %v", err)
	}

	records, err := store.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(records) != 1 || records[0].Key != "1718011800000" || records[0].TimeEnded != ended.UnixMilli() {
		t.Fatalf("unexpected history: %+v", records)
	}
}

func TestOccupancyStore_WatchRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newOccupancyStore(t)

	events, err := store.WatchRooms(ctx)
	if err != nil {
		t.Fatalf("WatchRooms failed: %v", err)
	}

	claimed, err := store.ClaimRoom(ctx, sampleRoom("R101"))
	if err != nil {
		t.Fatalf("ClaimRoom failed: %v", err)
	}
	if err := store.ReleaseRoom(ctx, "R101", claimed.Revision); err != nil {
		t.Fatalf("ReleaseRoom failed: %v", err)
	}

	for i, wantOccupied := range []bool{true, false} {
		select {
		case event := <-events:
			if event.Room != "R101" || (event.Record != nil) != wantOccupied {
				t.Fatalf("unexpected event %d: %+v", i, event)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
