// Package orders is the order ledger: checkout, availability, payment and
// delivery transitions, and deletion.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/notify"
	"github.com/vjcreations/storefront/internal/pricing"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxDailyBookings = 3

const feedSource = "ledger"

// Live feed message types.
const (
	EventOrderCreated   = "order_created"
	EventOrderPaid      = "order_paid"
	EventOrderDelivered = "order_delivered"
	EventOrderDeleted   = "order_deleted"
)

var (
	ErrEmptyCart      = apperr.Validation("Cart is empty")
	ErrPaymentMethod  = apperr.Validation("paymentMethod must be PayPal or Cash On Delivery")
	ErrInvalidDate    = apperr.Validation("selectedDate must be a date")
	ErrNotOrderOwner  = apperr.Forbidden("You are not allowed to access this order")
	ErrInvalidProduct = apperr.Validation("Order references a product that does not exist")
)

// Broadcaster publishes live feed messages to connected admin clients.
type Broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

// ProductCache is the catalog's read cache. Stock reservations clear it.
type ProductCache interface {
	Invalidate(ctx context.Context) error
}

type Config struct {
	Pricing          pricing.Policy
	MaxDailyBookings int
}

type Ledger struct {
	orders   store.OrderStore
	products store.ProductStore
	users    store.UserStore
	notifier notify.Notifier
	feed     Broadcaster
	catalog  ProductCache
	policy   pricing.Policy
	maxDaily int
	tracer   trace.Tracer
	logger   *logrus.Logger
	now      func() time.Time
}

func NewLedger(orders store.OrderStore, products store.ProductStore, users store.UserStore, notifier notify.Notifier, feed Broadcaster, catalog ProductCache, cfg Config, logger *logrus.Logger) *Ledger {
	if cfg.MaxDailyBookings <= 0 {
		cfg.MaxDailyBookings = DefaultMaxDailyBookings
	}
	return &Ledger{
		orders:   orders,
		products: products,
		users:    users,
		notifier: notifier,
		feed:     feed,
		catalog:  catalog,
		policy:   cfg.Pricing,
		maxDaily: cfg.MaxDailyBookings,
		tracer:   otel.Tracer("github.com/vjcreations/storefront/internal/orders"),
		logger:   logger,
		now:      time.Now,
	}
}

// CartItem is one requested line. Clients send the product id as "product" or "_id".
type CartItem struct {
	ProductID string `json:"product"`
	LegacyID  string `json:"_id"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

func (c CartItem) productID() string {
	if c.ProductID != "" {
		return c.ProductID
	}
	return c.LegacyID
}

type Cart struct {
	Items []CartItem `json:"orderItems" validate:"dive"`
}

// Checkout is everything a customer submits to place an order. Client-side
// prices are not part of it; the ledger prices from the catalog.
type Checkout struct {
	Items           []CartItem             `json:"orderItems" validate:"dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" validate:"required"`
}

type Quote struct {
	Items []models.OrderItem `json:"orderItems"`
	pricing.Breakdown
}

func (l *Ledger) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "orders."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (l *Ledger) broadcast(messageType string, data interface{}) {
	if l.feed != nil {
		l.feed.Broadcast(messageType, data, feedSource)
	}
}

// price snapshots each cart line from the current catalog and prices the result.
func (l *Ledger) price(ctx context.Context, items []CartItem) ([]models.OrderItem, pricing.Breakdown, error) {
	if len(items) == 0 {
		return nil, pricing.Breakdown{}, ErrEmptyCart
	}

	lines := make([]models.OrderItem, 0, len(items))
	priced := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, pricing.Breakdown{}, apperr.Validation("quantity must be at least 1")
		}
		p, err := l.products.GetProduct(ctx, item.productID())
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, pricing.Breakdown{}, ErrInvalidProduct
		}
		if err != nil {
			return nil, pricing.Breakdown{}, err
		}
		lines = append(lines, models.OrderItem{
			ProductID:   p.ID,
			Name:        p.Name,
			Slug:        p.Slug,
			Image:       p.Image,
			ProductType: p.Type,
			Price:       p.Price,
			Quantity:    item.Quantity,
		})
		priced = append(priced, pricing.Line{Price: p.Price, Quantity: item.Quantity})
	}
	return lines, l.policy.Compute(priced), nil
}

// Quote re-prices a cart from current catalog prices without placing anything.
func (l *Ledger) Quote(ctx context.Context, cart Cart) (*Quote, error) {
	lines, breakdown, err := l.price(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	return &Quote{Items: lines, Breakdown: breakdown}, nil
}

// Create places actor's order. Booking limits and stock reservation are
// checked atomically with the insert.
func (l *Ledger) Create(ctx context.Context, actor *models.User, checkout Checkout) (_ *models.Order, err error) {
	ctx, span := l.startSpan(ctx, "Create",
		attribute.String("user.id", actor.ID),
		attribute.Int("order.lines", len(checkout.Items)),
	)
	defer func() { endSpan(span, err) }()

	if !checkout.PaymentMethod.Valid() {
		return nil, ErrPaymentMethod
	}
	if _, err := checkout.ShippingAddress.EventDay(); err != nil {
		return nil, apperr.Validation("date must match the format %s", models.EventDateLayout)
	}

	lines, breakdown, err := l.price(ctx, checkout.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          actor.ID,
		Items:           lines,
		ShippingAddress: checkout.ShippingAddress,
		PaymentMethod:   checkout.PaymentMethod,
		ItemsPrice:      breakdown.ItemsPrice,
		ShippingPrice:   breakdown.ShippingPrice,
		TaxPrice:        breakdown.TaxPrice,
		DiscountAmount:  breakdown.DiscountAmount,
		TotalPrice:      breakdown.TotalPrice,
		Status:          models.StatusUnpaid,
	}
	if err := l.orders.PlaceOrder(ctx, order, l.maxDaily); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	if reservesStock(lines) {
		l.invalidateCatalog(ctx, order.ID)
	}

	l.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"user_id":     actor.ID,
		"total_price": order.TotalPrice.String(),
		"event_date":  order.ShippingAddress.EventDate,
		"items_count": len(order.Items),
	}).Info("Order created")

	l.notifier.Notify(ctx, notify.OrderConfirmation(actor, order))
	l.broadcast(EventOrderCreated, order)
	return order, nil
}

func reservesStock(lines []models.OrderItem) bool {
	for _, line := range lines {
		if !line.ProductType.IsBookable() {
			return true
		}
	}
	return false
}

// invalidateCatalog drops cached products so countInStock reflects the reservation.
func (l *Ledger) invalidateCatalog(ctx context.Context, orderID string) {
	if err := l.catalog.Invalidate(ctx); err != nil {
		l.logger.WithError(err).WithField("order_id", orderID).Error("Failed to invalidate catalog cache")
	}
}

// ParseSelectedDate accepts a calendar date or an RFC 3339 timestamp.
func ParseSelectedDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(models.EventDateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalidDate
}

// CheckAvailability reports whether customerID may book productID on the UTC
// day of date. It is advisory; Create re-checks under lock.
func (l *Ledger) CheckAvailability(ctx context.Context, customerID, productID string, date time.Time) (bool, error) {
	count, err := l.orders.CountBookings(ctx, customerID, productID, date)
	if err != nil {
		return false, fmt.Errorf("count bookings: %w", err)
	}
	return count < l.maxDaily, nil
}

func (l *Ledger) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := l.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// transition applies mutate to the order and persists it only if no other
// request moved the order in between.
func (l *Ledger) transition(ctx context.Context, order *models.Order, mutate func(*models.Order) error) error {
	from := order.Status
	if err := mutate(order); err != nil {
		var te *models.TransitionError
		if errors.As(err, &te) {
			return apperr.Wrap(apperr.KindConflict, err, te.Error())
		}
		return err
	}
	if err := l.orders.SaveTransition(ctx, order, from); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return nil
}

// MarkPaidOnline records a processor payment. Owner or admin.
func (l *Ledger) MarkPaidOnline(ctx context.Context, actor *models.User, orderID string, result models.PaymentResult) (_ *models.Order, err error) {
	ctx, span := l.startSpan(ctx, "MarkPaidOnline", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	order, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(actor, order.UserID); err != nil {
		return nil, ErrNotOrderOwner
	}
	err = l.transition(ctx, order, func(o *models.Order) error {
		return o.MarkPaid(l.now().UTC(), &result)
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{"order_id": order.ID, "payment_id": result.ID}).Info("Order paid online")
	l.broadcast(EventOrderPaid, order)
	return order, nil
}

// MarkPaidCash records a cash payment. Admin only.
func (l *Ledger) MarkPaidCash(ctx context.Context, actor *models.User, orderID string) (_ *models.Order, err error) {
	ctx, span := l.startSpan(ctx, "MarkPaidCash", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	order, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	err = l.transition(ctx, order, func(o *models.Order) error {
		return o.MarkPaid(l.now().UTC(), nil)
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{"order_id": order.ID, "admin_id": actor.ID}).Info("Order paid in cash")
	l.broadcast(EventOrderPaid, order)
	return order, nil
}

// MarkDelivered moves a paid order to delivered. Admin only.
func (l *Ledger) MarkDelivered(ctx context.Context, actor *models.User, orderID string) (_ *models.Order, err error) {
	ctx, span := l.startSpan(ctx, "MarkDelivered", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	order, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	err = l.transition(ctx, order, func(o *models.Order) error {
		return o.MarkDelivered(l.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{"order_id": order.ID, "admin_id": actor.ID}).Info("Order delivered")
	l.broadcast(EventOrderDelivered, order)
	return order, nil
}

// Delete removes an order after notifying its owner. Admin only.
func (l *Ledger) Delete(ctx context.Context, actor *models.User, orderID string) (err error) {
	ctx, span := l.startSpan(ctx, "Delete", attribute.String("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := auth.RequireAdmin(actor); err != nil {
		return err
	}
	order, err := l.load(ctx, orderID)
	if err != nil {
		return err
	}

	owner, err := l.users.GetUser(ctx, order.UserID)
	switch {
	case err == nil:
		l.notifier.Notify(ctx, notify.OrderDeleted(owner, order))
	default:
		l.logger.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"user_id":  order.UserID,
		}).Warn("Order owner not found, skipping deletion notice")
	}

	if err := l.orders.DeleteOrder(ctx, orderID); err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}

	l.logger.WithFields(logrus.Fields{"order_id": orderID, "admin_id": actor.ID}).Info("Order deleted")
	l.broadcast(EventOrderDeleted, map[string]string{"id": orderID})
	return nil
}

// Get returns an order to its owner or an admin.
func (l *Ledger) Get(ctx context.Context, actor *models.User, orderID string) (*models.Order, error) {
	order, err := l.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(actor, order.UserID); err != nil {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

func (l *Ledger) ListMine(ctx context.Context, actor *models.User) ([]models.Order, error) {
	return l.orders.ListOrdersByUser(ctx, actor.ID)
}

// ListAll returns every order with its owner's name. Admin only.
func (l *Ledger) ListAll(ctx context.Context, actor *models.User) ([]models.Order, error) {
	if err := auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return l.orders.ListOrders(ctx)
}
