package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/notify/notifytest"
	"github.com/vjcreations/storefront/internal/store/memory"
	"github.com/vjcreations/storefront/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

type stubReports struct {
	summary *models.Summary
	err     error
}

func (s stubReports) Summary(ctx context.Context) (*models.Summary, error) {
	return s.summary, s.err
}

func (s stubReports) SellerStats(ctx context.Context) (*models.SellerStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SellerStats{
		ProductBrands: []models.CountBucket{{Key: "VJ-Creations", Count: 2}},
		BrandSales:    []models.BrandSales{{Brand: "VJ-Creations", Quantity: 3, Sales: decimal.NewFromInt(150000)}},
	}, nil
}

type fixture struct {
	router   *mux.Router
	admin    string
	customer string
}

func setup(t *testing.T, reports stubReports) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	ctx := context.Background()

	s := memory.New()
	admin := &models.User{Name: "Shaki", Email: "admin@example.com", IsAdmin: true}
	customer := &models.User{Name: "John", Email: "user@example.com"}
	require.NoError(t, s.CreateUser(ctx, admin))
	require.NoError(t, s.CreateUser(ctx, customer))

	tokens := auth.NewTokens("reporting-test", time.Hour)
	authenticator := auth.NewAuthenticator(s, tokens, &notifytest.Recorder{}, auth.Options{BcryptCost: bcrypt.MinCost}, logger)

	router := mux.NewRouter()
	NewHandler(reports, logger).Register(router, auth.NewGuard(authenticator, logger))

	adminToken, err := tokens.Issue(admin)
	require.NoError(t, err)
	customerToken, err := tokens.Issue(customer)
	require.NoError(t, err)
	return &fixture{router: router, admin: adminToken, customer: customerToken}
}

func (f *fixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSummary(t *testing.T) {
	f := setup(t, stubReports{summary: &models.Summary{Users: 2, Orders: 5, TotalSales: decimal.RequireFromString("1250.50")}})

	rec := f.get("/api/orders/summary", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["users"])
	assert.EqualValues(t, 5, body["orders"])
	assert.EqualValues(t, 1250.5, body["totalSales"])
}

func TestSellerStats(t *testing.T) {
	f := setup(t, stubReports{})

	rec := f.get("/api/orders/seller", f.admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		BrandSales []struct {
			Brand    string `json:"brand"`
			Quantity int    `json:"quantity"`
		} `json:"brandSales"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.BrandSales, 1)
	assert.Equal(t, 3, stats.BrandSales[0].Quantity)
}

func TestDashboardsRequireAdmin(t *testing.T) {
	f := setup(t, stubReports{})

	for _, path := range []string{"/api/orders/summary", "/api/orders/seller"} {
		assert.Equal(t, http.StatusUnauthorized, f.get(path, "").Code, path)
		assert.Equal(t, http.StatusForbidden, f.get(path, f.customer).Code, path)
	}
}

func TestStoreFailureIsHidden(t *testing.T) {
	f := setup(t, stubReports{err: errors.New("connection reset by peer")})

	rec := f.get("/api/orders/summary", f.admin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}
