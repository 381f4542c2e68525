package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/testfixtures"
)

func claimRoom(t *testing.T, h *apiHarness, entry persistence.ScheduleEntry) persistence.RoomRecord {
	t.Helper()
	rec, err := h.factory.Occupancy.ClaimRoom(context.Background(), persistence.RoomRecord{
		SessionRecord: testfixtures.SessionRecord(entry, testfixtures.ReferenceTime()),
		HolderToken:   "token-test",
	})
	if err != nil {
		t.Fatalf("ClaimRoom(%s): %v", entry.Room, err)
	}
	return rec
}

func TestRoomHandlerListAndGet(t *testing.T) {
	h := newAPIHarness(t)
	claimRoom(t, h, testfixtures.NewScheduleEntry(testfixtures.WithRoom("R101")))
	claimRoom(t, h, testfixtures.NewScheduleEntry(testfixtures.WithRoom("R102")))

	rec := h.do(t, http.MethodGet, "/rooms", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	list := decodeBody[roomListResponse](t, rec)
	if len(list.Rooms) != 2 {
		t.Fatalf("expected 2 occupied rooms, got %+v", list.Rooms)
	}
	for _, room := range list.Rooms {
		if !room.Occupied || room.Session == nil {
			t.Fatalf("expected occupied room with session, got %+v", room)
		}
	}

	rec = h.do(t, http.MethodGet, "/rooms/R999", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[roomResponse](t, rec); got.Room.Occupied || got.Room.Room != "R999" {
		t.Fatalf("expected free R999, got %+v", got.Room)
	}
}

type failingRooms struct{}

func (failingRooms) ListOccupied(context.Context) ([]application.RoomStatus, error) {
	return nil, &application.StoreError{Op: "list_rooms", Err: errors.New("offline")}
}

func (failingRooms) GetRoom(context.Context, string) (application.RoomStatus, error) {
	return application.RoomStatus{}, &application.StoreError{Op: "read_room", Err: errors.New("offline")}
}

func (failingRooms) Watch(context.Context) (<-chan application.RoomStatus, error) {
	return nil, &application.StoreError{Op: "watch_rooms", Err: errors.New("offline")}
}

func TestRoomHandlerStoreErrors(t *testing.T) {
	handler := NewRouter(RouterConfig{Rooms: NewRoomHandler(failingRooms{}, nil, nil)})

	for _, target := range []string{"/rooms", "/rooms/R101", "/rooms/watch"} {
		t.Run(target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			expectStatus(t, rec, http.StatusServiceUnavailable)
		})
	}
}

func TestRoomHandlerWatchStreamsSnapshotAndUpdates(t *testing.T) {
	h := newAPIHarness(t)
	claimRoom(t, h, testfixtures.NewScheduleEntry(testfixtures.WithRoom("R100")))

	srv := httptest.NewServer(h.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial watch: %v (response %+v)", err, resp)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot roomEvent
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != "snapshot" || len(snapshot.Rooms) != 1 || snapshot.Rooms[0].Room != "R100" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	claimed := claimRoom(t, h, testfixtures.NewScheduleEntry(testfixtures.WithRoom("R101")))

	var update roomEvent
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Type != "update" || update.Room == nil || update.Room.Room != "R101" || !update.Room.Occupied {
		t.Fatalf("expected R101 occupied update, got %+v", update)
	}

	if err := h.factory.Occupancy.ReleaseRoom(context.Background(), "R101", claimed.Revision); err != nil {
		t.Fatalf("ReleaseRoom: %v", err)
	}
	update = roomEvent{}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read release: %v", err)
	}
	if update.Room == nil || update.Room.Room != "R101" || update.Room.Occupied {
		t.Fatalf("expected R101 free update, got %+v", update)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
		nilFunc bool
	}{
		{name: "default same origin", allowed: nil, nilFunc: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed", allowed: []string{"https://dash.example/"}, origin: "https://DASH.example", want: true},
		{name: "unlisted", allowed: []string{"https://dash.example"}, origin: "https://other.example", want: false},
		{name: "no origin header", allowed: []string{"https://dash.example"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			if tt.nilFunc {
				if check != nil {
					t.Fatal("expected nil checker so the upgrader applies its same-origin rule")
				}
				return
			}
			req := httptest.NewRequest(http.MethodGet, "/rooms/watch", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := check(req); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
