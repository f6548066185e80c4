// Package auth owns accounts and sessions: password hashing, signed session
// tokens, request identity and the admin role check.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/notify"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const maskedPassword = "********"

var (
	ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")
	ErrNotAdmin           = apperr.Forbidden("Invalid Admin Token")
	ErrNotOwner           = apperr.Forbidden("You are not allowed to access this resource")
	ErrSeedAdmin          = apperr.Forbidden("Can Not Delete Admin User")
	ErrSeedAdminDemotion  = apperr.Forbidden("Can Not Remove Admin Role From Admin User")
	ErrSeedAdminEmail     = apperr.Forbidden("Can Not Change Email Of Admin User")
)

type Options struct {
	SeedAdminEmail string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Authenticator struct {
	users          store.UserStore
	tokens         *Tokens
	notifier       notify.Notifier
	seedAdminEmail string
	cost           int
	logger         *logrus.Logger
}

func NewAuthenticator(users store.UserStore, tokens *Tokens, notifier notify.Notifier, options Options, logger *logrus.Logger) *Authenticator {
	if options.BcryptCost == 0 {
		options.BcryptCost = bcrypt.DefaultCost
	}
	return &Authenticator{
		users:          users,
		tokens:         tokens,
		notifier:       notifier,
		seedAdminEmail: normalizeEmail(options.SeedAdminEmail),
		cost:           options.BcryptCost,
		logger:         logger,
	}
}

type Registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MobileNo string `json:"mobileNo"`
	City     string `json:"city"`
	Address  string `json:"address"`
}

// ProfileUpdate carries self-service changes. Empty fields keep their value.
type ProfileUpdate struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password"`
	MobileNo string `json:"mobileNo"`
	City     string `json:"city"`
	Address  string `json:"address"`
}

// UserUpdate is the admin edit. Empty strings keep their value; IsAdmin is always applied.
type UserUpdate struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"omitempty,email"`
	MobileNo string `json:"mobileNo"`
	City     string `json:"city"`
	Address  string `json:"address"`
	IsAdmin  bool   `json:"isAdmin"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Authenticator) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", apperr.Internal(err, "Failed to hash password")
	}
	return string(hash), nil
}

func (a *Authenticator) session(u *models.User) (*models.Session, error) {
	token, err := a.tokens.Issue(u)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to issue token")
	}
	session := models.NewSession(u, token)
	return &session, nil
}

func (a *Authenticator) Register(ctx context.Context, reg Registration) (*models.Session, error) {
	hash, err := a.hash(reg.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Name:         strings.TrimSpace(reg.Name),
		Email:        normalizeEmail(reg.Email),
		PasswordHash: hash,
		MobileNo:     reg.MobileNo,
		City:         reg.City,
		Address:      reg.Address,
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("register %s: %w", u.Email, err)
	}

	a.logger.WithFields(logrus.Fields{"user_id": u.ID, "email": u.Email}).Info("User registered")
	a.notifier.Notify(ctx, notify.Welcome(u))
	return a.session(u)
}

func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	u, err := a.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.session(u)
}

// Authorize verifies token and reloads its user, so role changes take effect
// on the next request.
func (a *Authenticator) Authorize(ctx context.Context, token string) (*models.User, error) {
	subject, err := a.tokens.Subject(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetUser(ctx, subject)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func RequireAdmin(actor *models.User) error {
	if actor == nil || !actor.IsAdmin {
		return ErrNotAdmin
	}
	return nil
}

// RequireOwnerOrAdmin allows admins and the user whose id is ownerID.
func RequireOwnerOrAdmin(actor *models.User, ownerID string) error {
	if actor == nil {
		return ErrNotOwner
	}
	if actor.IsAdmin || actor.ID == ownerID {
		return nil
	}
	return ErrNotOwner
}

func (a *Authenticator) UpdateProfile(ctx context.Context, actor *models.User, update ProfileUpdate) (*models.Session, error) {
	u, err := a.users.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	if err := a.checkSeedAdminEmail(u, update.Email); err != nil {
		return nil, err
	}

	var changes []models.FieldChange
	apply := func(field string, dst *string, value string) {
		if value != "" && value != *dst {
			*dst = value
			changes = append(changes, models.FieldChange{Field: field, Value: value})
		}
	}
	apply("name", &u.Name, strings.TrimSpace(update.Name))
	apply("email", &u.Email, normalizeEmail(update.Email))
	apply("mobileNo", &u.MobileNo, update.MobileNo)
	apply("city", &u.City, update.City)
	apply("address", &u.Address, update.Address)
	if update.Password != "" {
		hash, err := a.hash(update.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
		changes = append(changes, models.FieldChange{Field: "password", Value: maskedPassword})
	}

	if err := a.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update profile %s: %w", u.ID, err)
	}

	if len(changes) > 0 {
		a.notifier.Notify(ctx, notify.ProfileUpdated(u, changes))
	}
	return a.session(u)
}

func (a *Authenticator) ListUsers(ctx context.Context, actor *models.User) ([]models.User, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	return a.users.ListUsers(ctx)
}

func (a *Authenticator) GetUser(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	if err := RequireOwnerOrAdmin(actor, id); err != nil {
		return nil, err
	}
	return a.users.GetUser(ctx, id)
}

func (a *Authenticator) UpdateUser(ctx context.Context, actor *models.User, id string, update UserUpdate) (*models.User, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.isSeedAdmin(u) && !update.IsAdmin {
		return nil, ErrSeedAdminDemotion
	}
	if err := a.checkSeedAdminEmail(u, update.Email); err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(update.Name); name != "" {
		u.Name = name
	}
	if email := normalizeEmail(update.Email); email != "" {
		u.Email = email
	}
	if update.MobileNo != "" {
		u.MobileNo = update.MobileNo
	}
	if update.City != "" {
		u.City = update.City
	}
	if update.Address != "" {
		u.Address = update.Address
	}
	u.IsAdmin = update.IsAdmin

	if err := a.users.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	a.logger.WithFields(logrus.Fields{
		"user_id":  u.ID,
		"admin_id": actor.ID,
		"is_admin": u.IsAdmin,
	}).Info("User updated by admin")
	return u, nil
}

func (a *Authenticator) DeleteUser(ctx context.Context, actor *models.User, id string) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	u, err := a.users.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if a.isSeedAdmin(u) {
		return ErrSeedAdmin
	}
	if err := a.users.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	a.logger.WithFields(logrus.Fields{"user_id": id, "admin_id": actor.ID}).Info("User deleted")
	return nil
}

func (a *Authenticator) isSeedAdmin(u *models.User) bool {
	return a.seedAdminEmail != "" && normalizeEmail(u.Email) == a.seedAdminEmail
}

// checkSeedAdminEmail keeps the seed admin's email fixed, since protection is keyed on it.
func (a *Authenticator) checkSeedAdminEmail(u *models.User, email string) error {
	email = normalizeEmail(email)
	if email != "" && email != normalizeEmail(u.Email) && a.isSeedAdmin(u) {
		return ErrSeedAdminEmail
	}
	return nil
}

// EnsureAdmin creates an admin account, or promotes and re-passwords the
// existing account with that email.
func (a *Authenticator) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	hash, err := a.hash(password)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	u, err := a.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		u = &models.User{Name: name, Email: email, PasswordHash: hash, IsAdmin: true}
		if err := a.users.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("create admin %s: %w", email, err)
		}
	case err != nil:
		return nil, err
	default:
		u.PasswordHash = hash
		u.IsAdmin = true
		if name != "" {
			u.Name = name
		}
		if err := a.users.UpdateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("promote admin %s: %w", email, err)
		}
	}
	return u, nil
}
