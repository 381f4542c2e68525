package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/room-occupancy/internal/application"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
)

type roomStatuses interface {
	ListOccupied(ctx context.Context) ([]application.RoomStatus, error)
	GetRoom(ctx context.Context, room string) (application.RoomStatus, error)
	Watch(ctx context.Context) (<-chan application.RoomStatus, error)
}

// RoomHandler serves the occupancy dashboard.
type RoomHandler struct {
	rooms        roomStatuses
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	responder    responder
	logger       *slog.Logger
}

// NewRoomHandler builds the dashboard handler. allowedOrigins limits which
// browser origins may open the watch stream; empty means same origin only
// and "*" allows any.
func NewRoomHandler(rooms roomStatuses, allowedOrigins []string, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: watchWriteTimeout,
			CheckOrigin:      originChecker(allowedOrigins),
		},
		pingInterval: watchPingInterval,
		responder:    newResponder(base),
		logger:       base,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

// List serves GET /rooms with every occupied room.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.rooms == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	rooms, err := h.rooms.ListOccupied(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "room listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomListResponse{Rooms: rooms})
}

// Get serves GET /rooms/{room}. Free rooms are reported with occupied=false.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.rooms == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	room, ok := RoomFromContext(r.Context())
	if !ok || strings.TrimSpace(room) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoom)
		return
	}

	status, err := h.rooms.GetRoom(r.Context(), room)
	if err != nil {
		h.log(r.Context(), "Get", "room", room).ErrorContext(r.Context(), "room lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: status})
}

// Watch serves GET /rooms/watch. The connection receives a snapshot of the
// occupied rooms followed by one update per change until either side closes.
func (h *RoomHandler) Watch(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.rooms == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := h.log(ctx, "Watch")

	// Subscribe before the snapshot so no change falls between them.
	updates, err := h.rooms.Watch(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "room watch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	snapshot, err := h.rooms.ListOccupied(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "room snapshot failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	logger.InfoContext(ctx, "watch stream opened", "rooms", len(snapshot))

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.send(conn, roomEvent{Type: "snapshot", Rooms: snapshot}); err != nil {
		logger.WarnContext(ctx, "failed to send snapshot", "error", err)
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(watchWriteTimeout))
			logger.InfoContext(ctx, "watch stream closed")
			return
		case status, ok := <-updates:
			if !ok {
				updates = nil
				cancel()
				continue
			}
			if err := h.send(conn, roomEvent{Type: "update", Room: &status}); err != nil {
				logger.WarnContext(ctx, "failed to send room update", "error", err, "room", status.Room)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
				logger.WarnContext(ctx, "watch ping failed", "error", err)
				return
			}
		}
	}
}

func (h *RoomHandler) send(conn *websocket.Conn, event roomEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

type roomListResponse struct {
	Rooms []application.RoomStatus `json:"rooms"`
}

type roomResponse struct {
	Room application.RoomStatus `json:"room"`
}

type roomEvent struct {
	Type  string                   `json:"type"`
	Rooms []application.RoomStatus `json:"rooms,omitempty"`
	Room  *application.RoomStatus  `json:"room,omitempty"`
}
