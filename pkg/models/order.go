package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventDateLayout = "2006-01-02"
	EventTimeLayout = "15:04"
)

type PaymentMethod string

const (
	PaymentPayPal         PaymentMethod = "PayPal"
	PaymentCashOnDelivery PaymentMethod = "Cash On Delivery"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentPayPal || m == PaymentCashOnDelivery
}

type OrderStatus string

const (
	StatusUnpaid    OrderStatus = "unpaid"
	StatusPaid      OrderStatus = "paid"
	StatusDelivered OrderStatus = "delivered"
)

var orderTransitions = map[OrderStatus]OrderStatus{
	StatusUnpaid: StatusPaid,
	StatusPaid:   StatusDelivered,
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderTransitions[s]
	return ok && allowed == next
}

type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user"`
	UserName        string          `json:"userName,omitempty"`
	Items           []OrderItem     `json:"orderItems"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TaxPrice        decimal.Decimal `json:"taxPrice"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Status          OrderStatus     `json:"status"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt"`
	PaymentResult   *PaymentResult  `json:"paymentResult,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem is a line item snapshotted from the catalog when the order is placed.
type OrderItem struct {
	ProductID   string          `json:"product"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Image       string          `json:"image"`
	ProductType ProductType     `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

type ShippingAddress struct {
	FullName   string `json:"fullName" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	EventDate  string `json:"date" validate:"required,datetime=2006-01-02"`
	EventTime  string `json:"time" validate:"required,datetime=15:04"`
}

// EventDay is the event date as a UTC midnight.
func (a ShippingAddress) EventDay() (time.Time, error) {
	return time.ParseInLocation(EventDateLayout, a.EventDate, time.UTC)
}

type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// MarkPaid moves the order from unpaid to paid. The paid flag and timestamp
// always change together.
func (o *Order) MarkPaid(at time.Time, result *PaymentResult) error {
	if !o.Status.CanTransitionTo(StatusPaid) {
		return &TransitionError{From: o.Status, To: StatusPaid}
	}
	o.Status = StatusPaid
	o.IsPaid = true
	o.PaidAt = &at
	o.PaymentResult = result
	o.UpdatedAt = at
	return nil
}

// MarkDelivered moves the order from paid to delivered.
func (o *Order) MarkDelivered(at time.Time) error {
	if !o.Status.CanTransitionTo(StatusDelivered) {
		return &TransitionError{From: o.Status, To: StatusDelivered}
	}
	o.Status = StatusDelivered
	o.IsDelivered = true
	o.DeliveredAt = &at
	o.UpdatedAt = at
	return nil
}

// ContainsProduct reports whether any line item references productID.
func (o *Order) ContainsProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}
