// Package store defines the persistence ports of the storefront. The postgres
// subpackage backs production; memory backs tests and local development.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/pkg/models"
)

var (
	ErrProductNotFound  = apperr.NotFound("Product Not Found")
	ErrUserNotFound     = apperr.NotFound("User Not Found")
	ErrOrderNotFound    = apperr.NotFound("Order Not Found")
	ErrEmailTaken       = apperr.Conflict("Email is already registered")
	ErrDuplicateProduct = apperr.Conflict("Product name or slug already exists")
	ErrDuplicateReview  = apperr.Conflict("You already submitted a review")
	ErrOutOfStock       = apperr.Conflict("Product is out of stock")
	ErrFullyBooked      = apperr.Conflict("Service is not available on the selected date")
	ErrStaleOrder       = apperr.Conflict("Order was modified by another request")
)

type SortOrder string

const (
	SortFeatured SortOrder = "featured"
	SortLowest   SortOrder = "lowest"
	SortHighest  SortOrder = "highest"
	SortTopRated SortOrder = "toprated"
	SortNewest   SortOrder = "newest"
)

// ProductFilter narrows a product search. Nil bounds are not applied.
type ProductFilter struct {
	Query     string
	Category  string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinRating *float64
	Order     SortOrder
	Page      int
	PageSize  int
}

func (f ProductFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	SearchProducts(ctx context.Context, filter ProductFilter) ([]models.Product, int, error)
	Categories(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	// AddReview appends the review and recomputes rating and count in one step.
	AddReview(ctx context.Context, productID string, review models.Review) (*models.Product, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

type OrderStore interface {
	// PlaceOrder inserts the order atomically with its side conditions: every
	// service line must have fewer than maxBookings orders by the same customer
	// on the event day, and every physical line reserves stock.
	PlaceOrder(ctx context.Context, order *models.Order, maxBookings int) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	// ListOrders returns every order with UserName joined from the account store.
	ListOrders(ctx context.Context) ([]models.Order, error)
	CountBookings(ctx context.Context, userID, productID string, day time.Time) (int, error)
	// SaveTransition persists order's payment and delivery state, provided the
	// stored status still equals from.
	SaveTransition(ctx context.Context, order *models.Order, from models.OrderStatus) error
	DeleteOrder(ctx context.Context, id string) error
}

type ReportStore interface {
	Summary(ctx context.Context) (*models.Summary, error)
	SellerStats(ctx context.Context) (*models.SellerStats, error)
}

type Store interface {
	ProductStore
	UserStore
	OrderStore
	ReportStore
	Ping(ctx context.Context) error
	Close() error
}

// DeletedUserName is shown on orders whose owner no longer exists.
const DeletedUserName = "Deleted User"

// DayBounds returns the UTC calendar day containing t as [start, end).
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
