// Package reporting serves the read-only admin dashboards.
package reporting

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/internal/store"
)

type Handler struct {
	reports store.ReportStore
	logger  *logrus.Logger
}

func NewHandler(reports store.ReportStore, logger *logrus.Logger) *Handler {
	return &Handler{reports: reports, logger: logger}
}

// Register mounts the dashboard routes. They live under /api/orders, so r must
// see them before the order routes' /{id} pattern.
func (h *Handler) Register(r *mux.Router, guard *auth.Guard) {
	r.Handle("/api/orders/summary", guard.Admin(h.Summary)).Methods(http.MethodGet)
	r.Handle("/api/orders/seller", guard.Admin(h.SellerStats)).Methods(http.MethodGet)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Summary(r.Context())
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) SellerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.SellerStats(r.Context())
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, stats)
}
