package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/room-occupancy/internal/application"
)

type sessionEngines interface {
	Engine(ctx context.Context, principal application.Principal) (*application.SessionEngine, error)
}

type scheduleLookup interface {
	Get(ctx context.Context, facultyID, scheduleID string) (application.Session, error)
}

// SessionHandler drives the calling faculty member's session engine.
type SessionHandler struct {
	engines   sessionEngines
	schedules scheduleLookup
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(engines sessionEngines, schedules scheduleLookup, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{engines: engines, schedules: schedules, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// engine resolves the caller's engine or writes the failure response.
func (h *SessionHandler) engine(w http.ResponseWriter, r *http.Request, operation string) (*application.SessionEngine, application.Principal, bool) {
	if h == nil || h.engines == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, application.Principal{}, false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingFacultyID)
		return nil, application.Principal{}, false
	}
	engine, err := h.engines.Engine(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), operation, "faculty_id", principal.FacultyID).
			ErrorContext(r.Context(), "failed to resolve session engine", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, principal, false
	}
	return engine, principal, true
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	engine, _, ok := h.engine(w, r, "Get")
	if !ok {
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionStateResponse(engine))
}

func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	engine, principal, ok := h.engine(w, r, "Select")
	if !ok {
		return
	}

	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Select", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode select request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := application.Validate(req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Select", "schedule_id", req.ScheduleID)

	candidate, err := h.candidate(r.Context(), principal, req)
	if err != nil {
		logger.WarnContext(r.Context(), "schedule lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if _, err := engine.SelectSession(r.Context(), candidate); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionStateResponse(engine))
}

func (h *SessionHandler) candidate(ctx context.Context, principal application.Principal, req selectRequest) (application.Session, error) {
	if id := strings.TrimSpace(req.ScheduleID); id != "" {
		if h.schedules == nil {
			return application.Session{}, application.ErrNotFound
		}
		return h.schedules.Get(ctx, principal.FacultyID, id)
	}
	return *req.Session, nil
}

func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	engine, _, ok := h.engine(w, r, "Cancel")
	if !ok {
		return
	}
	if err := engine.Cancel(); err != nil {
		h.log(r.Context(), "Cancel").WarnContext(r.Context(), "cancel refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionStateResponse(engine))
}

func (h *SessionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	engine, _, ok := h.engine(w, r, "Scan")
	if !ok {
		return
	}

	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Scan", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode scan request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	if _, err := engine.SubmitScan(r.Context(), req.DecodedText); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSessionStateResponse(engine))
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	engine, _, ok := h.engine(w, r, "End")
	if !ok {
		return
	}

	result, err := engine.EndSession(r.Context())
	if err != nil && !errors.Is(err, application.ErrNotArchived) {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := endResponse{State: application.StateIdle.String(), Result: result}
	if err != nil {
		// Occupancy was released; only the history write is missing.
		h.log(r.Context(), "End", "session_id", result.Session.SessionID).
			WarnContext(r.Context(), "session ended without history", "error", err, "error_kind", application.ErrorKind(err))
		resp.Warning = "The session ended but could not be written to history."
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type selectRequest struct {
	ScheduleID string               `json:"schedule_id" validate:"required_without=Session"`
	Session    *application.Session `json:"session,omitempty" validate:"-"`
}

type scanRequest struct {
	DecodedText string `json:"decoded_text"`
}

type sessionStateResponse struct {
	State       string               `json:"state"`
	Session     *application.Session `json:"session,omitempty"`
	FacultyID   string               `json:"faculty_id"`
	FacultyName string               `json:"faculty_name,omitempty"`
}

type endResponse struct {
	State   string                `json:"state"`
	Result  application.EndResult `json:"result"`
	Warning string                `json:"warning,omitempty"`
}

func toSessionStateResponse(engine *application.SessionEngine) sessionStateResponse {
	principal := engine.Principal()
	resp := sessionStateResponse{
		State:       engine.State().String(),
		FacultyID:   principal.FacultyID,
		FacultyName: principal.FacultyName,
	}
	if current, ok := engine.Current(); ok {
		resp.Session = &current
	}
	return resp
}
