package orders

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "orders-test-secret"

func newTestRouter(t *testing.T, f *fixture) *mux.Router {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tokens := auth.NewTokens(testSecret, time.Hour)
	authenticator := auth.NewAuthenticator(f.store, tokens, f.notifier, auth.Options{BcryptCost: bcrypt.MinCost}, logger)

	router := mux.NewRouter()
	NewHandler(f.ledger, logger).Register(router, auth.NewGuard(authenticator, logger))
	return router
}

func (f *fixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := auth.NewTokens(testSecret, time.Hour).Issue(u)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
