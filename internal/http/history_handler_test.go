package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/room-occupancy/internal/application"
)

type historyStub struct {
	entries []application.HistoryEntry
	err     error
}

func (s historyStub) List(context.Context) ([]application.HistoryEntry, error) {
	return s.entries, s.err
}

func historyEntryFor(key, facultyID, room string) application.HistoryEntry {
	return application.HistoryEntry{
		Key:       key,
		Session:   application.Session{FacultyID: facultyID, Room: room},
		TimeEnded: time.UnixMilli(1717977600000),
	}
}

func TestHistoryHandlerList(t *testing.T) {
	stub := historyStub{entries: []application.HistoryEntry{
		historyEntryFor("0001717977600000", "fac-1", "R101"),
		historyEntryFor("0001717977700000", "fac-2", "R101"),
		historyEntryFor("0001717977800000", "fac-1", "R202"),
		historyEntryFor("0001717977900000", "fac-1", "R101"),
	}}
	handler := NewHistoryHandler(stub, nil)

	tests := []struct {
		name     string
		query    string
		wantKeys []string
	}{
		{name: "all", query: "", wantKeys: []string{"0001717977600000", "0001717977700000", "0001717977800000", "0001717977900000"}},
		{name: "by faculty", query: "?faculty_id=fac-1", wantKeys: []string{"0001717977600000", "0001717977800000", "0001717977900000"}},
		{name: "by room", query: "?room=r101", wantKeys: []string{"0001717977600000", "0001717977700000", "0001717977900000"}},
		{name: "limit keeps newest", query: "?faculty_id=fac-1&limit=2", wantKeys: []string{"0001717977800000", "0001717977900000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.List(rec, httptest.NewRequest(http.MethodGet, "/history"+tt.query, nil))

			expectStatus(t, rec, http.StatusOK)
			got := decodeBody[historyListResponse](t, rec)
			if len(got.History) != len(tt.wantKeys) {
				t.Fatalf("expected %d entries, got %d", len(tt.wantKeys), len(got.History))
			}
			for i, key := range tt.wantKeys {
				if got.History[i].Key != key {
					t.Fatalf("entry %d: expected %s, got %s", i, key, got.History[i].Key)
				}
			}
		})
	}
}

func TestHistoryHandlerErrors(t *testing.T) {
	t.Run("invalid limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHistoryHandler(historyStub{}, nil).List(rec, httptest.NewRequest(http.MethodGet, "/history?limit=-1", nil))
		expectStatus(t, rec, http.StatusUnprocessableEntity)
		if got := decodeBody[errorResponse](t, rec); got.Errors["limit"] == "" {
			t.Fatalf("expected limit field error, got %+v", got)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		stub := historyStub{err: &application.StoreError{Op: "list_history", Err: errors.New("offline")}}
		rec := httptest.NewRecorder()
		NewHistoryHandler(stub, nil).List(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
		expectStatus(t, rec, http.StatusServiceUnavailable)
	})
}
