package http

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Sessions  *SessionHandler
	Schedules *ScheduleHandler
	Rooms     *RoomHandler
	History   *HistoryHandler
	Health    HealthCheck
	// Authenticate wraps the routes that act on behalf of a faculty member.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler {
		if cfg.Authenticate == nil {
			return h
		}
		return cfg.Authenticate(h)
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		serveHealth(w, r, cfg.Health)
	})

	if cfg.Sessions != nil {
		routes := map[string]struct {
			method  string
			handler http.HandlerFunc
		}{
			"/session":        {http.MethodGet, cfg.Sessions.Get},
			"/session/select": {http.MethodPost, cfg.Sessions.Select},
			"/session/cancel": {http.MethodPost, cfg.Sessions.Cancel},
			"/session/scan":   {http.MethodPost, cfg.Sessions.Scan},
			"/session/end":    {http.MethodPost, cfg.Sessions.End},
		}
		for path, route := range routes {
			mux.Handle(path, authed(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != route.method {
					methodNotAllowed(w, route.method)
					return
				}
				route.handler(w, r)
			}))
		}
	}

	if cfg.Schedules != nil {
		mux.Handle("/schedules", authed(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Schedules.List(w, r)
		}))
	}

	if cfg.Rooms != nil {
		mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Rooms.List(w, r)
		})
		mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
			room := strings.TrimPrefix(r.URL.Path, "/rooms/")
			if room == "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			if room == "watch" {
				cfg.Rooms.Watch(w, r)
				return
			}
			ctx := ContextWithRoom(r.Context(), room)
			cfg.Rooms.Get(w, r.WithContext(ctx))
		})
	}

	if cfg.History != nil {
		mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.History.List(w, r)
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func serveHealth(w http.ResponseWriter, r *http.Request, check HealthCheck) {
	responder := newResponder(LoggerFromContext(r.Context()))
	if check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			responder.loggerFor(ctx).WarnContext(ctx, "health check failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
