package http

import (
	"context"
	"log/slog"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/logging"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	roomContextKey      contextKey = "room"
)

// ContextWithPrincipal returns a derived context containing the calling faculty member.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the calling faculty member from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithRoom injects the room name resolved from the request path.
func ContextWithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, roomContextKey, room)
}

// RoomFromContext extracts a room name previously associated with the context.
func RoomFromContext(ctx context.Context) (string, bool) {
	room, ok := ctx.Value(roomContextKey).(string)
	return room, ok
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
