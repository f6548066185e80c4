package upload

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/httpx"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	client *Client
	logger *logrus.Logger
}

func NewHandler(client *Client, logger *logrus.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

func (h *Handler) Register(r *mux.Router, guard *auth.Guard) {
	r.Handle("/api/upload", guard.Admin(h.Upload)).Methods(http.MethodPost)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, apperr.Wrap(apperr.KindValidation, err, "file is required"))
		return
	}
	defer file.Close()

	result, err := h.client.Upload(r.Context(), header.Filename, file)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, result)
}
