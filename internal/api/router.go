package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/webmixer/internal/mixer"
	"github.com/nerrad567/webmixer/internal/panel"
)

// Query limits for GET /history.
const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// buildRouter creates the HTTP router with all routes and middleware.
// ctx bounds the lifetime of WebSocket connections.
func (s *Server) buildRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	cfg := s.config()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	// The socket sits outside the body limit; frames are capped by the
	// upgrader's read limit instead.
	r.Get(cfg.WebSocket.Path, func(w http.ResponseWriter, r *http.Request) {
		s.handleWebSocket(ctx, w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.bodySizeLimitMiddleware)

		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.metrics.handler().ServeHTTP)
		r.Get("/config", s.handleGetConfig)
		r.Get("/aux", s.handleListAux)
		r.Get("/channels", s.handleListChannels)
		r.Get("/history", s.handleHistory)
		r.Post("/admin", s.handleAdmin)
	})

	// Mixer surface and admin page, embedded unless a static dir is set.
	ui := panel.Handler(cfg.Server.StaticDir)
	r.Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = "/admin.html"
		ui.ServeHTTP(w, r)
	})
	r.Handle("/*", ui)

	return r
}

// handleHealth returns the server health and a snapshot of the engine.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "mixer engine not running")
		return
	}
	status := "ok"
	if !st.Ready {
		status = "waiting_for_desk"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"engine":         st,
		"stats":          s.engine.Stats(),
	})
}

// handleListAux lists the named aux buses for the admin editor.
func (s *Server) handleListAux(w http.ResponseWriter, r *http.Request) {
	aux, err := s.engine.AuxDetails(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "mixer engine not running")
		return
	}
	writeJSON(w, http.StatusOK, aux)
}

// handleListChannels lists the named input channels for the admin editor.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.engine.ChannelDetails(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "mixer engine not running")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

// handleHistory returns recorded control changes, newest first.
// Query parameters: address (exact match, optional) and limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	address := r.URL.Query().Get("address")
	if address != "" && !mixer.Cacheable(address) {
		writeBadRequest(w, "address is not a recorded control")
		return
	}

	records, err := s.history.Query(r.Context(), address, limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err, "address", address)
		writeInternalError(w, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
