package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/testfixtures"
)

type apiHarness struct {
	factory  *testfixtures.ServiceFactory
	registry *application.EngineRegistry
	handler  http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	return newAPIHarnessWithDeps(t, testfixtures.EngineDeps{})
}

func newAPIHarnessWithDeps(t *testing.T, deps testfixtures.EngineDeps) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := testfixtures.NewServiceFactory(t, testfixtures.WithLogger(logger))

	registry := application.NewEngineRegistry(func(p application.Principal) (*application.SessionEngine, error) {
		return factory.NewEngine(t, testfixtures.FacultyFixture{ID: p.FacultyID, Name: p.FacultyName}, deps), nil
	}, logger)
	catalog := factory.NewScheduleCatalog(0)

	handler := NewRouter(RouterConfig{
		Sessions:     NewSessionHandler(registry, catalog, logger),
		Schedules:    NewScheduleHandler(catalog, logger),
		Rooms:        NewRoomHandler(factory.NewRoomStatusService(), nil, logger),
		History:      NewHistoryHandler(factory.Archiver, logger),
		Health:       factory.Storage.Ping,
		Authenticate: RequireFaculty(logger),
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(logger)},
	})
	return &apiHarness{factory: factory, registry: registry, handler: handler}
}

func (h *apiHarness) do(t *testing.T, method, target string, faculty *testfixtures.FacultyFixture, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if faculty != nil {
		req.Header.Set(FacultyIDHeader, faculty.ID)
		req.Header.Set(FacultyNameHeader, faculty.Name)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
