// Package rest provides the health endpoints of the catalog service.
package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mkraev/gocatalog/pkg/web"

	"github.com/go-chi/chi/v5"
)

// Pinger reports whether the backing database is reachable.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a new HealthHandler backed by the given pool.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the health endpoints.
func (h *HealthHandler) RegisterRoutes(r *chi.Mux) {
	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)
}

// Live reports that the process is running.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Ready reports whether the database is reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "database ping failed", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
