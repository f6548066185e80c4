package catalog

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/pkg/models"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type createRequest struct {
	Type string `json:"type"`
}

type productResponse struct {
	Message string          `json:"message"`
	Product *models.Product `json:"product"`
}

func (h *Handler) Register(r *mux.Router, guard *auth.Guard) {
	products := r.PathPrefix("/api/products").Subrouter()
	products.HandleFunc("", h.List).Methods(http.MethodGet)
	products.Handle("", guard.Admin(h.Create)).Methods(http.MethodPost)
	products.Handle("/admin", guard.Admin(h.AdminList)).Methods(http.MethodGet)
	products.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	products.HandleFunc("/categories", h.Categories).Methods(http.MethodGet)
	products.HandleFunc("/slug/{slug}", h.GetBySlug).Methods(http.MethodGet)
	products.HandleFunc("/{id}", h.GetByID).Methods(http.MethodGet)
	products.Handle("/{id}", guard.Admin(h.Update)).Methods(http.MethodPut)
	products.Handle("/{id}", guard.Admin(h.Delete)).Methods(http.MethodDelete)
	products.Handle("/{id}/reviews", guard.User(h.AddReview)).Methods(http.MethodPost)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, products)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.Search(r.Context(), SearchParams{
		Query:    q.Get("query"),
		Category: q.Get("category"),
		Price:    q.Get("price"),
		Rating:   q.Get("rating"),
		Order:    q.Get("order"),
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
	})
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, page)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.AdminList(r.Context(), queryInt(r, "page"), queryInt(r, "pageSize"))
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, page)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	p, err := h.service.Create(r.Context(), auth.UserFrom(r.Context()), req.Type)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusCreated, productResponse{Message: "Product Created", Product: p})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProductInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	p, err := h.service.Update(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, productResponse{Message: "Product Updated", Product: p})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithMessage(w, http.StatusOK, "Product Deleted")
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	result, err := h.service.AddReview(r.Context(), auth.UserFrom(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusCreated, result)
}
