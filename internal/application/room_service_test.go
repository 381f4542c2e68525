package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/persistence/memory"
)

type failingRoomReader struct {
	err error
}

func (f failingRoomReader) ReadRoom(context.Context, string) (persistence.RoomRecord, error) {
	return persistence.RoomRecord{}, f.err
}

func (f failingRoomReader) ListRooms(context.Context) ([]persistence.RoomRecord, error) {
	return nil, f.err
}

func (f failingRoomReader) WatchRooms(context.Context) (<-chan persistence.RoomEvent, error) {
	return nil, f.err
}

func newRoomFixture(t *testing.T) (*persistence.OccupancyStore, *RoomStatusService) {
	t.Helper()
	storage := memory.New()
	t.Cleanup(func() { _ = storage.Close() })
	store := persistence.NewOccupancyStore(storage)
	return store, NewRoomStatusService(store)
}

func heldRoom(room, facultyID string) persistence.RoomRecord {
	at := time.Date(2024, 6, 10, 0, 5, 0, 0, time.UTC)
	return persistence.RoomRecord{
		SessionRecord: persistence.SessionRecord{
			SessionID:  room + "-1717977600000",
			FacultyID:  facultyID,
			Room:       room,
			Day:        "Mon",
			StartTime:  "08:00",
			EndTime:    "09:00",
			AttendedAt: &at,
		},
		HolderToken: "token",
	}
}

func TestRoomStatusService_GetRoom(t *testing.T) {
	ctx := context.Background()
	store, svc := newRoomFixture(t)

	free, err := svc.GetRoom(ctx, "R101")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if free.Occupied || free.Session != nil {
		t.Fatalf("expected free room, got %+v", free)
	}

	if _, err := store.ClaimRoom(ctx, heldRoom("R101", "fac-1")); err != nil {
		t.Fatalf("ClaimRoom: %v", err)
	}
	held, err := svc.GetRoom(ctx, "R101")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if !held.Occupied || held.Session == nil || held.Session.FacultyID != "fac-1" || held.Revision == 0 {
		t.Fatalf("unexpected status %+v", held)
	}

	var vErr *ValidationError
	if _, err := svc.GetRoom(ctx, "a/b"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRoomStatusService_ListOccupied(t *testing.T) {
	ctx := context.Background()
	store, svc := newRoomFixture(t)
	for _, room := range []string{"R102", "R101"} {
		if _, err := store.ClaimRoom(ctx, heldRoom(room, "fac-"+room)); err != nil {
			t.Fatalf("ClaimRoom: %v", err)
		}
	}

	statuses, err := svc.ListOccupied(ctx)
	if err != nil {
		t.Fatalf("ListOccupied: %v", err)
	}
	if len(statuses) != 2 || statuses[0].Room != "R101" || statuses[1].Room != "R102" {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestRoomStatusService_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, svc := newRoomFixture(t)

	updates, err := svc.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	claimed, err := store.ClaimRoom(ctx, heldRoom("R101", "fac-1"))
	if err != nil {
		t.Fatalf("ClaimRoom: %v", err)
	}
	if err := store.ReleaseRoom(ctx, "R101", claimed.Revision); err != nil {
		t.Fatalf("ReleaseRoom: %v", err)
	}

	expectations := []bool{true, false}
	for _, occupied := range expectations {
		select {
		case status := <-updates:
			if status.Room != "R101" || status.Occupied != occupied {
				t.Fatalf("expected R101 occupied=%v, got %+v", occupied, status)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for room status")
		}
	}

	cancel()
	for range updates {
	}
}

func TestRoomStatusService_StoreErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewRoomStatusService(failingRoomReader{err: errors.New("offline")})

	var sErr *StoreError
	if _, err := svc.GetRoom(ctx, "R101"); !errors.As(err, &sErr) {
		t.Fatalf("expected StoreError from GetRoom, got %v", err)
	}
	if _, err := svc.ListOccupied(ctx); !errors.As(err, &sErr) {
		t.Fatalf("expected StoreError from ListOccupied, got %v", err)
	}
	if _, err := svc.Watch(ctx); !errors.As(err, &sErr) {
		t.Fatalf("expected StoreError from Watch, got %v", err)
	}
}
