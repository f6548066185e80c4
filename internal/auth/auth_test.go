package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/notify/notifytest"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/internal/store/memory"
	"github.com/vjcreations/storefront/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	auth     *Authenticator
	users    *memory.Store
	tokens   *Tokens
	notifier *notifytest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := memory.New()
	tokens := NewTokens(testSecret, 720*time.Hour)
	notifier := &notifytest.Recorder{}
	a := NewAuthenticator(users, tokens, notifier, Options{
		SeedAdminEmail: "admin@example.com",
		BcryptCost:     bcrypt.MinCost,
	}, quietLogger())
	return &fixture{auth: a, users: users, tokens: tokens, notifier: notifier}
}

func (f *fixture) register(t *testing.T, name, email string) *models.Session {
	t.Helper()
	s, err := f.auth.Register(context.Background(), Registration{Name: name, Email: email, Password: "secret123", City: "Colombo"})
	require.NoError(t, err)
	return s
}

func (f *fixture) admin(t *testing.T) *models.User {
	t.Helper()
	u, err := f.auth.EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass")
	require.NoError(t, err)
	return u
}

func TestRegisterThenSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	registered := f.register(t, "Kamala", "Kamala@VJ.lk")
	assert.Equal(t, "kamala@vj.lk", registered.Email)
	assert.False(t, registered.IsAdmin)
	assert.Equal(t, []models.NotificationKind{models.NotifyWelcome}, f.notifier.Kinds())

	session, err := f.auth.SignIn(ctx, "kamala@vj.lk", "secret123")
	require.NoError(t, err)

	subject, err := f.tokens.Subject(session.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, subject)

	u, err := f.auth.Authorize(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "Kamala", u.Name)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Kamala", "kamala@vj.lk")

	_, err := f.auth.Register(context.Background(), Registration{Name: "Other", Email: "KAMALA@vj.lk", Password: "x"})
	assert.ErrorIs(t, err, store.ErrEmailTaken)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Kamala", "kamala@vj.lk")

	_, err := f.auth.SignIn(context.Background(), "kamala@vj.lk", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.SignIn(context.Background(), "nobody@vj.lk", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "Kamala", "kamala@vj.lk")

	_, err := f.auth.Authorize(ctx, "not-a-token")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	other := NewTokens("another-secret", time.Hour)
	forged, err := other.Issue(&models.User{ID: session.ID})
	require.NoError(t, err)
	_, err = f.auth.Authorize(ctx, forged)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	expired := NewTokens(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue(&models.User{ID: session.ID})
	require.NoError(t, err)
	_, err = f.auth.Authorize(ctx, stale)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: session.ID})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = f.auth.Authorize(ctx, unsigned)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestAuthorizeReloadsUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "Kamala", "kamala@vj.lk")

	u, err := f.users.GetUser(ctx, session.ID)
	require.NoError(t, err)
	u.IsAdmin = true
	require.NoError(t, f.users.UpdateUser(ctx, u))

	// The token was issued before promotion but the reloaded user wins.
	actor, err := f.auth.Authorize(ctx, session.Token)
	require.NoError(t, err)
	assert.NoError(t, RequireAdmin(actor))

	require.NoError(t, f.users.DeleteUser(ctx, session.ID))
	_, err = f.auth.Authorize(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdateProfileReportsChangedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "Kamala", "kamala@vj.lk")
	actor, err := f.auth.Authorize(ctx, session.Token)
	require.NoError(t, err)

	updated, err := f.auth.UpdateProfile(ctx, actor, ProfileUpdate{City: "Galle", Name: "Kamala", Password: "newpass"})
	require.NoError(t, err)
	assert.Equal(t, "Galle", updated.City)
	assert.NotEmpty(t, updated.Token)

	sent := f.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, models.NotifyProfileUpdated, sent[1].Kind)
	assert.Equal(t, []models.FieldChange{
		{Field: "city", Value: "Galle"},
		{Field: "password", Value: maskedPassword},
	}, sent[1].Changes)

	_, err = f.auth.SignIn(ctx, "kamala@vj.lk", "newpass")
	assert.NoError(t, err)
}

func TestUpdateProfileWithoutChangesSendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "Kamala", "kamala@vj.lk")
	actor, err := f.auth.Authorize(ctx, session.Token)
	require.NoError(t, err)

	_, err = f.auth.UpdateProfile(ctx, actor, ProfileUpdate{})
	require.NoError(t, err)
	assert.Len(t, f.notifier.Sent(), 1)
}

func TestAdminUserManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	session := f.register(t, "Kamala", "kamala@vj.lk")
	customer, err := f.users.GetUser(ctx, session.ID)
	require.NoError(t, err)

	_, err = f.auth.ListUsers(ctx, customer)
	assert.ErrorIs(t, err, ErrNotAdmin)

	users, err := f.auth.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = f.auth.GetUser(ctx, customer, admin.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	self, err := f.auth.GetUser(ctx, customer, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "kamala@vj.lk", self.Email)

	promoted, err := f.auth.UpdateUser(ctx, admin, customer.ID, UserUpdate{City: "Jaffna", IsAdmin: true})
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin)
	assert.Equal(t, "Jaffna", promoted.City)
	assert.Equal(t, "Kamala", promoted.Name)

	_, err = f.auth.UpdateUser(ctx, admin, "missing", UserUpdate{})
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestSeedAdminIsProtected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	err := f.auth.DeleteUser(ctx, admin, admin.ID)
	assert.ErrorIs(t, err, ErrSeedAdmin)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = f.auth.UpdateUser(ctx, admin, admin.ID, UserUpdate{IsAdmin: false})
	assert.ErrorIs(t, err, ErrSeedAdminDemotion)

	_, err = f.users.GetUser(ctx, admin.ID)
	assert.NoError(t, err)
}

func TestSeedAdminCannotBeRenamedAway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)

	other := f.register(t, "Kamala", "kamala@vj.lk")
	promoted, err := f.auth.UpdateUser(ctx, admin, other.ID, UserUpdate{Name: "Kamala", IsAdmin: true})
	require.NoError(t, err)

	_, err = f.auth.UpdateUser(ctx, promoted, admin.ID, UserUpdate{Email: "renamed@example.com", IsAdmin: true})
	assert.ErrorIs(t, err, ErrSeedAdminEmail)
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))

	_, err = f.auth.UpdateProfile(ctx, admin, ProfileUpdate{Email: "renamed@example.com"})
	assert.ErrorIs(t, err, ErrSeedAdminEmail)

	assert.ErrorIs(t, f.auth.DeleteUser(ctx, promoted, admin.ID), ErrSeedAdmin)

	stored, err := f.users.GetUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", stored.Email)

	_, err = f.auth.UpdateUser(ctx, promoted, admin.ID, UserUpdate{Email: "ADMIN@example.com", Name: "Shaki", IsAdmin: true})
	assert.NoError(t, err, "restating the same email is allowed")
	_, err = f.auth.UpdateProfile(ctx, admin, ProfileUpdate{City: "Jaffna"})
	assert.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	session := f.register(t, "Kamala", "kamala@vj.lk")

	require.NoError(t, f.auth.DeleteUser(ctx, admin, session.ID))
	_, err := f.users.GetUser(ctx, session.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	err = f.auth.DeleteUser(ctx, admin, session.ID)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestEnsureAdminPromotesExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "Kamala", "kamala@vj.lk")

	u, err := f.auth.EnsureAdmin(ctx, "", "kamala@vj.lk", "rotated")
	require.NoError(t, err)
	assert.Equal(t, session.ID, u.ID)
	assert.True(t, u.IsAdmin)
	assert.Equal(t, "Kamala", u.Name)

	_, err = f.auth.SignIn(ctx, "kamala@vj.lk", "rotated")
	assert.NoError(t, err)
}

func newTestRouter(f *fixture) *mux.Router {
	router := mux.NewRouter()
	NewHandler(f.auth, quietLogger()).Register(router, NewGuard(f.auth, quietLogger()))
	return router
}

func TestHandlerSignUpAndProtectedRoutes(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/users/signup",
		strings.NewReader(`{"name":"Kamala","email":"kamala@vj.lk","password":"secret123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":`)
	assert.NotContains(t, rec.Body.String(), "secret123")

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"No Token"}`, rec.Body.String())

	session, err := f.auth.SignIn(context.Background(), "kamala@vj.lk", "secret123")
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/"+session.ID, nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestHandlerSignUpValidation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/users/signup", strings.NewReader(`{"name":"Kamala","email":"nope","password":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email address")
}

func TestHandlerAdminDeletesUser(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	f.admin(t)
	adminSession, err := f.auth.SignIn(context.Background(), "admin@example.com", "adminpass")
	require.NoError(t, err)
	customer := f.register(t, "Kamala", "kamala@vj.lk")

	req := httptest.NewRequest(http.MethodDelete, "/api/users/"+customer.ID, nil)
	req.Header.Set("Authorization", "Bearer "+adminSession.Token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"User Deleted"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/api/users/"+adminSession.ID, nil)
	req.Header.Set("Authorization", "Bearer "+adminSession.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
