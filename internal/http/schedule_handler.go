package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/room-occupancy/internal/application"
)

type scheduleLister interface {
	ListFor(ctx context.Context, facultyID, schoolYear, semester string) ([]application.Session, error)
}

// ScheduleHandler lists the calling faculty member's class meetings.
type ScheduleHandler struct {
	schedules scheduleLister
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(schedules scheduleLister, logger *slog.Logger) *ScheduleHandler {
	base := defaultLogger(logger)
	return &ScheduleHandler{schedules: schedules, responder: newResponder(base), logger: base}
}

func (h *ScheduleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ScheduleHandler", operation, attrs...)
}

// List serves GET /schedules?school_year=&semester=&day=. Missing filters or
// the value "All" match everything.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.schedules == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingFacultyID)
		return
	}

	query := r.URL.Query()
	schoolYear := query.Get("school_year")
	semester := query.Get("semester")
	day := query.Get("day")

	logger := h.log(r.Context(), "List",
		"faculty_id", principal.FacultyID,
		"school_year", schoolYear,
		"semester", semester,
		"day", day,
	)

	sessions, err := h.schedules.ListFor(r.Context(), principal.FacultyID, schoolYear, semester)
	if err != nil {
		logger.ErrorContext(r.Context(), "schedule listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	sessions = application.FilterByDay(sessions, day)

	logger.With("count", len(sessions)).DebugContext(r.Context(), "schedules listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleListResponse{Schedules: sessions})
}

type scheduleListResponse struct {
	Schedules []application.Session `json:"schedules"`
}
