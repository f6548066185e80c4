package orders

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/pkg/models"
)

type Handler struct {
	ledger *Ledger
	logger *logrus.Logger
}

func NewHandler(ledger *Ledger, logger *logrus.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

type availabilityRequest struct {
	ProductID    string `json:"productId" validate:"required"`
	SelectedDate string `json:"selectedDate" validate:"required"`
}

type availabilityResponse struct {
	IsAvailable bool `json:"isAvailable"`
}

// Register mounts the order routes. Routes with fixed segments that share the
// /api/orders prefix (reporting) must be registered on r before this.
func (h *Handler) Register(r *mux.Router, guard *auth.Guard) {
	orders := r.PathPrefix("/api/orders").Subrouter()
	orders.Handle("", guard.Admin(h.ListAll)).Methods(http.MethodGet)
	orders.Handle("", guard.User(h.Create)).Methods(http.MethodPost)
	orders.Handle("/quote", guard.User(h.Quote)).Methods(http.MethodPost)
	orders.Handle("/check-availability", guard.User(h.CheckAvailability)).Methods(http.MethodPost)
	orders.Handle("/mine", guard.User(h.ListMine)).Methods(http.MethodGet)
	orders.Handle("/{id}", guard.User(h.Get)).Methods(http.MethodGet)
	orders.Handle("/{id}", guard.Admin(h.Delete)).Methods(http.MethodDelete)
	orders.Handle("/{id}/pay", guard.User(h.Pay)).Methods(http.MethodPut)
	orders.Handle("/{id}/paycash", guard.Admin(h.PayCash)).Methods(http.MethodPut)
	orders.Handle("/{id}/deliver", guard.Admin(h.Deliver)).Methods(http.MethodPut)
}

func (h *Handler) respondWithOrder(w http.ResponseWriter, code int, message string, order *models.Order) {
	httpx.RespondWithJSON(w, code, models.OrderResponse{Success: true, Message: message, Order: order})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req Checkout
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	order, err := h.ledger.Create(r.Context(), auth.UserFrom(r.Context()), req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	h.respondWithOrder(w, http.StatusCreated, "New Order Created", order)
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req Cart
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	quote, err := h.ledger.Quote(r.Context(), req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, quote)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	date, err := ParseSelectedDate(req.SelectedDate)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	actor := auth.UserFrom(r.Context())
	available, err := h.ledger.CheckAvailability(r.Context(), actor.ID, req.ProductID, date)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, availabilityResponse{IsAvailable: available})
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.ListMine(r.Context(), auth.UserFrom(r.Context()))
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, nonNil(orders))
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.ListAll(r.Context(), auth.UserFrom(r.Context()))
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, nonNil(orders))
}

func nonNil(orders []models.Order) []models.Order {
	if orders == nil {
		return []models.Order{}
	}
	return orders
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.Get(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, order)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var result models.PaymentResult
	if err := httpx.DecodeJSON(r, &result); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	order, err := h.ledger.MarkPaidOnline(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"], result)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	h.respondWithOrder(w, http.StatusOK, "Order Paid", order)
}

func (h *Handler) PayCash(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.MarkPaidCash(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	h.respondWithOrder(w, http.StatusOK, "Order Paid", order)
}

func (h *Handler) Deliver(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.MarkDelivered(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	h.respondWithOrder(w, http.StatusOK, "Order Delivered", order)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Delete(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithMessage(w, http.StatusOK, "Order Deleted")
}
