package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

const orderColumns = `o.id, o.user_id, o.full_name, o.address, o.city, o.postal_code, o.country,
	o.event_date, o.event_time, o.payment_method, o.items_price, o.shipping_price, o.tax_price,
	o.discount_amount, o.total_price, o.status, o.is_paid, o.paid_at, o.payment_result,
	o.is_delivered, o.delivered_at, o.created_at, o.updated_at`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanOrder(row rowScanner, extra ...any) (*models.Order, error) {
	var o models.Order
	var eventDate time.Time
	var paidAt, deliveredAt sql.NullTime
	var paymentResult []byte

	dest := []any{
		&o.ID, &o.UserID, &o.ShippingAddress.FullName, &o.ShippingAddress.Address,
		&o.ShippingAddress.City, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&eventDate, &o.ShippingAddress.EventTime, &o.PaymentMethod, &o.ItemsPrice, &o.ShippingPrice,
		&o.TaxPrice, &o.DiscountAmount, &o.TotalPrice, &o.Status, &o.IsPaid, &paidAt, &paymentResult,
		&o.IsDelivered, &deliveredAt, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	o.ShippingAddress.EventDate = eventDate.Format(models.EventDateLayout)
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	if len(paymentResult) > 0 {
		var result models.PaymentResult
		if err := json.Unmarshal(paymentResult, &result); err != nil {
			return nil, fmt.Errorf("decode payment result: %w", err)
		}
		o.PaymentResult = &result
	}
	return &o, nil
}

func encodePaymentResult(r *models.PaymentResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// bookingLockKey serializes concurrent bookings of one service by one customer on one day.
func bookingLockKey(userID, productID, day string) string {
	return "booking:" + userID + ":" + productID + ":" + day
}

const countBookingsQuery = `
	SELECT COUNT(DISTINCT o.id)
	FROM orders o JOIN order_items i ON i.order_id = o.id
	WHERE o.user_id = $1 AND i.product_id = $2 AND o.event_date = $3::date`

func countBookings(ctx context.Context, q querier, userID, productID, day string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, countBookingsQuery, userID, productID, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return n, nil
}

func (s *Store) CountBookings(ctx context.Context, userID, productID string, day time.Time) (int, error) {
	start, _ := store.DayBounds(day)
	return countBookings(ctx, s.db, userID, productID, start.Format(models.EventDateLayout))
}

func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, maxBookings int) error {
	eventDay, err := order.ShippingAddress.EventDay()
	if err != nil {
		return fmt.Errorf("parse event date: %w", err)
	}
	day := eventDay.Format(models.EventDateLayout)

	services := make(map[string]string)
	reserve := make(map[string]int)
	for _, item := range order.Items {
		if item.ProductType.IsBookable() {
			services[item.ProductID] = item.Name
			continue
		}
		reserve[item.ProductID] += item.Quantity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Locks are taken in a stable order so two checkouts cannot deadlock.
	serviceIDs := make([]string, 0, len(services))
	for id := range services {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)
	for _, productID := range serviceIDs {
		key := bookingLockKey(order.UserID, productID, day)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		n, err := countBookings(ctx, tx, order.UserID, productID, day)
		if err != nil {
			return err
		}
		if n >= maxBookings {
			return fmt.Errorf("%s: %w", services[productID], store.ErrFullyBooked)
		}
	}

	goodIDs := make([]string, 0, len(reserve))
	for id := range reserve {
		goodIDs = append(goodIDs, id)
	}
	sort.Strings(goodIDs)
	for _, productID := range goodIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET count_in_stock = count_in_stock - $2, updated_at = NOW()
			WHERE id = $1 AND count_in_stock >= $2`, productID, reserve[productID])
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		if err := requireRow(res, store.ErrOutOfStock); err != nil {
			var name string
			lookup := tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1`, productID).Scan(&name)
			if lookup != nil {
				return notFound(lookup, store.ErrProductNotFound, "reserve stock")
			}
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	if err := insertOrder(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	paymentResult, err := encodePaymentResult(order.PaymentResult)
	if err != nil {
		return fmt.Errorf("encode payment result: %w", err)
	}
	addr := order.ShippingAddress

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, full_name, address, city, postal_code, country, event_date,
			event_time, payment_method, items_price, shipping_price, tax_price, discount_amount,
			total_price, status, is_paid, paid_at, payment_result, is_delivered, delivered_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23)`,
		order.ID, order.UserID, addr.FullName, addr.Address, addr.City, addr.PostalCode, addr.Country,
		addr.EventDate, addr.EventTime, order.PaymentMethod, order.ItemsPrice, order.ShippingPrice,
		order.TaxPrice, order.DiscountAmount, order.TotalPrice, order.Status, order.IsPaid,
		order.PaidAt, paymentResult, order.IsDelivered, order.DeliveredAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, slug, image, product_type, price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, item.ProductID, item.Name, item.Slug, item.Image, item.ProductType, item.Price, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// attachItems loads line items for all orders in one query.
func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, slug, image, product_type, price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item models.OrderItem
		err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Slug, &item.Image,
			&item.ProductType, &item.Price, &item.Quantity)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id))
	if err != nil {
		return nil, notFound(err, store.ErrOrderNotFound, "get order")
	}
	orders := []models.Order{*o}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, s.attachItems(ctx, orders)
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`, COALESCE(u.name, $1)
		FROM orders o LEFT JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC`, store.DeletedUserName)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		var userName string
		o, err := scanOrder(rows, &userName)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.UserName = userName
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, s.attachItems(ctx, orders)
}

func (s *Store) SaveTransition(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	paymentResult, err := encodePaymentResult(order.PaymentResult)
	if err != nil {
		return fmt.Errorf("encode payment result: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, is_paid = $3, paid_at = $4, payment_result = $5,
			is_delivered = $6, delivered_at = $7, updated_at = $8
		WHERE id = $1 AND status = $9`,
		order.ID, order.Status, order.IsPaid, order.PaidAt, paymentResult,
		order.IsDelivered, order.DeliveredAt, order.UpdatedAt, from,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := requireRow(res, store.ErrStaleOrder); err != nil {
		var exists bool
		lookup := s.db.QueryRowContext(ctx, `SELECT TRUE FROM orders WHERE id = $1`, order.ID).Scan(&exists)
		if lookup != nil {
			return notFound(lookup, store.ErrOrderNotFound, "update order")
		}
		return err
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return requireRow(res, store.ErrOrderNotFound)
}
