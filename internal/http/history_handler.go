package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/room-occupancy/internal/application"
)

type historyLister interface {
	List(ctx context.Context) ([]application.HistoryEntry, error)
}

// HistoryHandler exposes the archive of ended sessions.
type HistoryHandler struct {
	history   historyLister
	responder responder
	logger    *slog.Logger
}

func NewHistoryHandler(history historyLister, logger *slog.Logger) *HistoryHandler {
	base := defaultLogger(logger)
	return &HistoryHandler{history: history, responder: newResponder(base), logger: base}
}

// List serves GET /history?faculty_id=&room=&limit=. Entries come oldest
// first; limit keeps the most recent ones.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.history == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	facultyID := strings.TrimSpace(query.Get("faculty_id"))
	room := strings.TrimSpace(query.Get("room"))
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
				ErrorCode: "VALIDATION_FAILED",
				Message:   statusMessage(http.StatusUnprocessableEntity),
				Errors:    map[string]string{"limit": "must be a non-negative integer"},
			})
			return
		}
		limit = n
	}

	logger := handlerLogger(r.Context(), h.logger, "HistoryHandler", "List", "faculty_id", facultyID, "room", room)

	entries, err := h.history.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "history listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	filtered := make([]application.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		if facultyID != "" && !strings.EqualFold(entry.Session.FacultyID, facultyID) {
			continue
		}
		if room != "" && !strings.EqualFold(entry.Session.Room, room) {
			continue
		}
		filtered = append(filtered, entry)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, historyListResponse{History: filtered})
}

type historyListResponse struct {
	History []application.HistoryEntry `json:"history"`
}
