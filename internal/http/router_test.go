package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/room-occupancy/internal/testfixtures"
)

func TestRouterMethodNotAllowed(t *testing.T) {
	h := newAPIHarness(t)
	faculty := testfixtures.NewFacultyFixture()

	tests := []struct {
		method string
		target string
		allow  string
	}{
		{http.MethodPost, "/session", http.MethodGet},
		{http.MethodGet, "/session/select", http.MethodPost},
		{http.MethodGet, "/session/end", http.MethodPost},
		{http.MethodDelete, "/schedules", http.MethodGet},
		{http.MethodPost, "/rooms", http.MethodGet},
		{http.MethodPut, "/rooms/R101", http.MethodGet},
		{http.MethodPost, "/history", http.MethodGet},
		{http.MethodPost, "/health", http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.target, &faculty, nil)
			expectStatus(t, rec, http.StatusMethodNotAllowed)
			if got := rec.Header().Get("Allow"); got != tt.allow {
				t.Fatalf("expected Allow %q, got %q", tt.allow, got)
			}
		})
	}
}

func TestRouterRequiresFacultyForSessionRoutes(t *testing.T) {
	h := newAPIHarness(t)

	for _, target := range []string{"/session", "/schedules"} {
		rec := h.do(t, http.MethodGet, target, nil, nil)
		expectStatus(t, rec, http.StatusUnauthorized)
	}

	for _, target := range []string{"/rooms", "/history", "/health"} {
		rec := h.do(t, http.MethodGet, target, nil, nil)
		expectStatus(t, rec, http.StatusOK)
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	handler := NewRouter(RouterConfig{Health: func(context.Context) error { return errors.New("disk full") }})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	expectStatus(t, rec, http.StatusServiceUnavailable)
	if got := decodeBody[healthResponse](t, rec); got.Status != "unavailable" {
		t.Fatalf("expected unavailable, got %q", got.Status)
	}
}

func TestHealthAfterStoreClosed(t *testing.T) {
	h := newAPIHarness(t)
	expectStatus(t, h.do(t, http.MethodGet, "/health", nil, nil), http.StatusOK)

	_ = h.factory.Storage.Close()
	expectStatus(t, h.do(t, http.MethodGet, "/health", nil, nil), http.StatusServiceUnavailable)
}

func TestRouterUnknownRoom(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/rooms/", nil, nil)
	expectStatus(t, rec, http.StatusNotFound)
}
