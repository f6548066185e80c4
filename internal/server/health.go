package server

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/internal/httpx"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

type HealthResponse struct {
	Status          string                    `json:"status"`
	Service         string                    `json:"service"`
	Database        string                    `json:"database"`
	DatabaseError   string                    `json:"database_error,omitempty"`
	CircuitBreakers []circuitbreaker.Snapshot `json:"circuit_breakers"`
	Timestamp       string                    `json:"timestamp"`
}

type HealthHandler struct {
	db       Pinger
	breakers *circuitbreaker.Manager
	logger   *logrus.Logger
	now      func() time.Time
}

func NewHealthHandler(db Pinger, breakers *circuitbreaker.Manager, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, breakers: breakers, logger: logger, now: time.Now}
}

// ServeHTTP reports 503 when the database is down and "degraded" while any
// remote collaborator's breaker is open.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:          statusHealthy,
		Service:         "storefront-api",
		Database:        statusHealthy,
		CircuitBreakers: h.breakers.Snapshots(),
		Timestamp:       h.now().UTC().Format(time.RFC3339),
	}
	if resp.CircuitBreakers == nil {
		resp.CircuitBreakers = []circuitbreaker.Snapshot{}
	}

	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Database health check failed")
		resp.Status = statusUnhealthy
		resp.Database = statusUnhealthy
		resp.DatabaseError = err.Error()
		code = http.StatusServiceUnavailable
	} else if h.breakers.AnyOpen() {
		resp.Status = statusDegraded
	}

	httpx.RespondWithJSON(w, code, resp)
}
