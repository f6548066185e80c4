package auth

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/pkg/models"
)

type Handler struct {
	auth   *Authenticator
	logger *logrus.Logger
}

func NewHandler(auth *Authenticator, logger *logrus.Logger) *Handler {
	return &Handler{auth: auth, logger: logger}
}

type signInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userUpdatedResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

// Register mounts the /api/users routes on r.
func (h *Handler) Register(r *mux.Router, guard *Guard) {
	users := r.PathPrefix("/api/users").Subrouter()
	users.HandleFunc("/signup", h.SignUp).Methods(http.MethodPost)
	users.HandleFunc("/signin", h.SignIn).Methods(http.MethodPost)
	users.Handle("/profile/update", guard.User(h.UpdateProfile)).Methods(http.MethodPut)
	users.Handle("", guard.Admin(h.ListUsers)).Methods(http.MethodGet)
	users.Handle("/{id}", guard.User(h.GetUser)).Methods(http.MethodGet)
	users.Handle("/{id}", guard.Admin(h.UpdateUser)).Methods(http.MethodPut)
	users.Handle("/{id}", guard.Admin(h.DeleteUser)).Methods(http.MethodDelete)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req Registration
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	session, err := h.auth.Register(r.Context(), req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusCreated, session)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, session)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	session, err := h.auth.UpdateProfile(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, session)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), UserFrom(r.Context()))
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.GetUser(r.Context(), UserFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UserUpdate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	u, err := h.auth.UpdateUser(r.Context(), UserFrom(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, userUpdatedResponse{Message: "User Updated", User: u})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteUser(r.Context(), UserFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithMessage(w, http.StatusOK, "User Deleted")
}
