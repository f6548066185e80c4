package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/httpx"
	"github.com/vjcreations/storefront/pkg/models"
)

var ErrNoToken = apperr.Unauthorized("No Token")

type contextKey struct{}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFrom returns the authenticated user, or nil outside RequireAuth.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(contextKey{}).(*models.User)
	return u
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid token and stores the freshly
// loaded user in the request context.
func RequireAuth(a *Authenticator, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httpx.RespondWithAppError(w, logger, r, ErrNoToken)
				return
			}
			u, err := a.Authorize(r.Context(), token)
			if err != nil {
				httpx.RespondWithAppError(w, logger, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// AdminOnly must run after RequireAuth.
func AdminOnly(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := RequireAdmin(UserFrom(r.Context())); err != nil {
				httpx.RespondWithAppError(w, logger, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard wraps individual handlers with the auth middlewares so routes sharing
// a path can carry different requirements.
type Guard struct {
	auth   *Authenticator
	logger *logrus.Logger
}

func NewGuard(a *Authenticator, logger *logrus.Logger) *Guard {
	return &Guard{auth: a, logger: logger}
}

func (g *Guard) User(h http.HandlerFunc) http.Handler {
	return RequireAuth(g.auth, g.logger)(h)
}

func (g *Guard) Admin(h http.HandlerFunc) http.Handler {
	return RequireAuth(g.auth, g.logger)(AdminOnly(g.logger)(h))
}
