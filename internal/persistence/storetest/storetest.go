// Package storetest holds behaviour checks shared by every persistence.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
)

// Factory returns a fresh, empty store. The factory owns cleanup.
type Factory func(t *testing.T) persistence.Store

// Run exercises the Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ReadMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Read(context.Background(), persistence.RoomKey("R101"))
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("WriteReadDelete", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		key := persistence.RoomKey("R101")

		first, err := store.Write(ctx, key, []byte(`{"room":"R101"}`))
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if first.Revision <= 0 {
			t.Fatalf("expected positive revision, got %d", first.Revision)
		}

		second, err := store.Write(ctx, key, []byte(`{"room":"R101","building":"A"}`))
		if err != nil {
			t.Fatalf("second Write failed: %v", err)
		}
		if second.Revision <= first.Revision {
			t.Fatalf("expected revision to increase, got %d after %d", second.Revision, first.Revision)
		}

		got, err := store.Read(ctx, key)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if string(got.Value) != `{"room":"R101","building":"A"}` || got.Revision != second.Revision {
			t.Fatalf("unexpected entry: %+v", got)
		}

		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete of absent key failed: %v", err)
		}
		if _, err := store.Read(ctx, key); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("CompareAndWrite", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		key := persistence.OccupiedRoomKey("fac-1")

		created, err := store.CompareAndWrite(ctx, key, 0, []byte(`"R101"`))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if _, err := store.CompareAndWrite(ctx, key, 0, []byte(`"R202"`)); !errors.Is(err, persistence.ErrConflict) {
			t.Fatalf("expected ErrConflict on second create, got %v", err)
		}
		if _, err := store.CompareAndWrite(ctx, key, created.Revision+100, nil); !errors.Is(err, persistence.ErrConflict) {
			t.Fatalf("expected ErrConflict on stale delete, got %v", err)
		}

		updated, err := store.CompareAndWrite(ctx, key, created.Revision, []byte(`"R303"`))
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if updated.Revision <= created.Revision {
			t.Fatalf("expected revision to increase, got %d", updated.Revision)
		}
		if _, err := store.CompareAndWrite(ctx, key, created.Revision, nil); !errors.Is(err, persistence.ErrConflict) {
			t.Fatalf("expected ErrConflict with superseded revision, got %v", err)
		}
		if _, err := store.CompareAndWrite(ctx, key, updated.Revision, nil); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := store.Read(ctx, key); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected key to be gone, got %v", err)
		}
	})

	t.Run("CompareAndWriteSingleWinner", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		key := persistence.RoomKey("R101")

		const contenders = 8
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			wins   int
			others []error
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.CompareAndWrite(ctx, key, 0, []byte(fmt.Sprintf(`{"holder":%d}`, i)))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
					return
				}
				if !errors.Is(err, persistence.ErrConflict) {
					others = append(others, err)
				}
			}(i)
		}
		wg.Wait()

		if len(others) > 0 {
			t.Fatalf("unexpected errors: %v", others)
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for _, key := range []persistence.Key{
			persistence.RoomKey("R202"),
			persistence.RoomKey("R101"),
			persistence.OccupiedRoomKey("fac-1"),
			persistence.HistoryKey("0000000000001"),
		} {
			if _, err := store.Write(ctx, key, []byte(`{}`)); err != nil {
				t.Fatalf("Write %s failed: %v", key, err)
			}
		}

		rooms, err := store.List(ctx, persistence.Prefix(persistence.RoomsNamespace))
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(rooms) != 2 || rooms[0].Key != persistence.RoomKey("R101") || rooms[1].Key != persistence.RoomKey("R202") {
			t.Fatalf("unexpected rooms: %+v", rooms)
		}
	})

	t.Run("RejectsMalformedKeys", func(t *testing.T) {
		store := newStore(t)
		for _, key := range []persistence.Key{"", "rooms/", "rooms//x", "other/x"} {
			if _, err := store.Write(context.Background(), key, []byte(`{}`)); !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Fatalf("expected ErrConstraintViolation for %q, got %v", key, err)
			}
		}
	})

	t.Run("Watch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		store := newStore(t)

		events, err := store.Watch(ctx, persistence.Prefix(persistence.RoomsNamespace))
		if err != nil {
			t.Fatalf("Watch failed: %v", err)
		}

		if _, err := store.Write(ctx, persistence.OccupiedRoomKey("fac-1"), []byte(`"R101"`)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		put, err := store.Write(ctx, persistence.RoomKey("R101"), []byte(`{"room":"R101"}`))
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := store.Delete(ctx, persistence.RoomKey("R101")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		first := nextEvent(t, events)
		if first.Type != persistence.EventPut || first.Entry.Key != persistence.RoomKey("R101") || first.Entry.Revision != put.Revision {
			t.Fatalf("unexpected first event: %+v", first)
		}
		second := nextEvent(t, events)
		if second.Type != persistence.EventDelete || second.Entry.Key != persistence.RoomKey("R101") {
			t.Fatalf("unexpected second event: %+v", second)
		}

		cancel()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("watch channel not closed after cancel")
			}
		}
	})

	t.Run("Closed", func(t *testing.T) {
		store := newStore(t)
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if _, err := store.Read(context.Background(), persistence.RoomKey("R101")); !errors.Is(err, persistence.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	})
}

func nextEvent(t *testing.T, events <-chan persistence.Event) persistence.Event {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("watch channel closed unexpectedly")
		}
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
	return persistence.Event{}
}
