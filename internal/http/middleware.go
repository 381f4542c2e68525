package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/room-occupancy/internal/application"
	"github.com/example/room-occupancy/internal/persistence"
)

const (
	// FacultyIDHeader carries the identity issued by the upstream identity provider.
	FacultyIDHeader = "X-Faculty-ID"
	// FacultyNameHeader carries the display name that goes with FacultyIDHeader.
	FacultyNameHeader = "X-Faculty-Name"
)

// RequireFaculty resolves the calling faculty member from request headers.
// Identity is trusted as given; requests without an id are rejected.
func RequireFaculty(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(FacultyIDHeader))
			if id == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingFacultyID)
				return
			}
			if !persistence.ValidSegment(id) {
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Message: "Faculty id must not contain '/'."})
				return
			}

			principal := application.Principal{
				FacultyID:   id,
				FacultyName: strings.TrimSpace(r.Header.Get(FacultyNameHeader)),
			}
			ctx := ContextWithPrincipal(r.Context(), principal)
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("faculty_id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}
