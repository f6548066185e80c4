// Package chat answers simple product questions by keyword.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

const fallbackReply = "I am not sure about that. Can you please clarify?"

var (
	ErrNoProductReference = apperr.Validation("Product ID not found in the message")
	ErrProductNotFound    = apperr.NotFound("Product not found")
)

// keywords are matched in this order; the first one present wins.
var keywords = []string{"price", "description", "category", "brand", "stock"}

var productRef = regexp.MustCompile(`(?i)\bproduct\s+([\w-]+)`)

// Products is the catalog lookup the bot answers from.
type Products interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
}

type Bot struct {
	products Products
}

func NewBot(products Products) *Bot {
	return &Bot{products: products}
}

type Request struct {
	Message string `json:"message" validate:"required"`
}

type Reply struct {
	Message string `json:"message"`
}

// ProductReference extracts the slug or id following the word "product".
func ProductReference(message string) string {
	m := productRef.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}

func matchKeyword(message string) string {
	lower := strings.ToLower(message)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}

func (b *Bot) lookup(ctx context.Context, ref string) (*models.Product, error) {
	p, err := b.products.GetBySlug(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrProductNotFound) {
		return nil, err
	}
	p, err = b.products.GetByID(ctx, ref)
	if errors.Is(err, store.ErrProductNotFound) {
		return nil, ErrProductNotFound
	}
	return p, err
}

// Answer replies to one message.
func (b *Bot) Answer(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperr.Validation("Message is required")
	}
	keyword := matchKeyword(message)
	if keyword == "" {
		return fallbackReply, nil
	}
	ref := ProductReference(message)
	if ref == "" {
		return "", ErrNoProductReference
	}
	p, err := b.lookup(ctx, ref)
	if err != nil {
		return "", err
	}

	switch keyword {
	case "price":
		return fmt.Sprintf("The price of %s is $%s.", p.Name, p.Price.StringFixed(2)), nil
	case "description":
		return fmt.Sprintf("Description of %s: %s", p.Name, p.Description), nil
	case "category":
		return fmt.Sprintf("%s belongs to the category: %s.", p.Name, p.Category), nil
	case "brand":
		return fmt.Sprintf("%s is from the brand: %s.", p.Name, p.Brand), nil
	case "stock":
		if p.Type.IsBookable() {
			return fmt.Sprintf("%s is a service and is booked by event date.", p.Name), nil
		}
		return fmt.Sprintf("%s has %d items in stock.", p.Name, p.CountInStock), nil
	}
	return fallbackReply, nil
}

type Handler struct {
	bot    *Bot
	logger *logrus.Logger
}

func NewHandler(bot *Bot, logger *logrus.Logger) *Handler {
	return &Handler{bot: bot, logger: logger}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/chat", h.Chat).Methods(http.MethodPost)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	answer, err := h.bot.Answer(r.Context(), req.Message)
	if err != nil {
		httpx.RespondWithAppError(w, h.logger, r, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, Reply{Message: answer})
}
