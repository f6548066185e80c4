// Package memory is an in-process implementation of store.Store. A single
// mutex makes every operation atomic, including order placement.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

type Store struct {
	mutex    sync.RWMutex
	products map[string]*models.Product
	users    map[string]*models.User
	orders   map[string]*models.Order
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		products: make(map[string]*models.Product),
		users:    make(map[string]*models.User),
		orders:   make(map[string]*models.Order),
		now:      time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// Products

func cloneProduct(p *models.Product) models.Product {
	out := *p
	out.Images = append([]string(nil), p.Images...)
	out.Reviews = append([]models.Review(nil), p.Reviews...)
	return out
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	products := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	return products, nil
}

func (s *Store) SearchProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	query := strings.ToLower(filter.Query)
	var matched []models.Product
	for _, p := range s.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		if filter.MinRating != nil && p.Rating < *filter.MinRating {
			continue
		}
		matched = append(matched, cloneProduct(p))
	}

	sort.SliceStable(matched, productLess(matched, filter.Order))

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := total
	if filter.PageSize > 0 && start+filter.PageSize < total {
		end = start + filter.PageSize
	}
	return matched[start:end], total, nil
}

func productLess(products []models.Product, order store.SortOrder) func(i, j int) bool {
	newest := func(i, j int) bool { return products[i].CreatedAt.After(products[j].CreatedAt) }
	switch order {
	case store.SortLowest:
		return func(i, j int) bool { return products[i].Price.LessThan(products[j].Price) }
	case store.SortHighest:
		return func(i, j int) bool { return products[i].Price.GreaterThan(products[j].Price) }
	case store.SortTopRated:
		return func(i, j int) bool { return products[i].Rating > products[j].Rating }
	case store.SortFeatured:
		return func(i, j int) bool {
			if products[i].NumReviews != products[j].NumReviews {
				return products[i].NumReviews > products[j].NumReviews
			}
			return newest(i, j)
		}
	default:
		return newest
	}
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, p := range s.products {
		if !seen[p.Category] {
			seen[p.Category] = true
			categories = append(categories, p.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, p := range s.products {
		if p.Slug == slug {
			out := cloneProduct(p)
			return &out, nil
		}
	}
	return nil, store.ErrProductNotFound
}

func (s *Store) productNameTaken(p *models.Product) bool {
	for id, existing := range s.products {
		if id != p.ID && (existing.Name == p.Name || existing.Slug == p.Slug) {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if s.productNameTaken(p) {
		return store.ErrDuplicateProduct
	}
	s.stamp(&p.CreatedAt, &p.UpdatedAt)
	stored := cloneProduct(p)
	s.products[p.ID] = &stored
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return store.ErrProductNotFound
	}
	if s.productNameTaken(p) {
		return store.ErrDuplicateProduct
	}

	existing.Name = p.Name
	existing.Slug = p.Slug
	existing.Type = p.Type
	existing.Image = p.Image
	existing.Images = append([]string(nil), p.Images...)
	existing.Brand = p.Brand
	existing.Category = p.Category
	existing.Description = p.Description
	existing.Price = p.Price
	existing.CountInStock = p.CountInStock
	s.stamp(&existing.CreatedAt, &existing.UpdatedAt)

	*p = cloneProduct(existing)
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AddReview(ctx context.Context, productID string, review models.Review) (*models.Product, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	if p.HasReviewBy(review.Name) {
		return nil, store.ErrDuplicateReview
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = s.now().UTC()
	}
	p.AddReview(review)
	p.UpdatedAt = s.now().UTC()

	out := cloneProduct(p)
	return &out, nil
}

// Users

func (s *Store) emailTaken(u *models.User) bool {
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return true
		}
	}
	return false
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if s.emailTaken(u) {
		return store.ErrEmailTaken
	}
	s.stamp(&u.CreatedAt, &u.UpdatedAt)
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return store.ErrUserNotFound
	}
	if s.emailTaken(u) {
		return store.ErrEmailTaken
	}
	u.CreatedAt = existing.CreatedAt
	s.stamp(&u.CreatedAt, &u.UpdatedAt)
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// Orders

func cloneOrder(o *models.Order) models.Order {
	out := *o
	out.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		out.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		out.PaymentResult = &r
	}
	return out
}

func (s *Store) countBookings(userID, productID string, day time.Time) int {
	start, _ := store.DayBounds(day)
	count := 0
	for _, o := range s.orders {
		if o.UserID != userID || !o.ContainsProduct(productID) {
			continue
		}
		eventDay, err := o.ShippingAddress.EventDay()
		if err == nil && eventDay.Equal(start) {
			count++
		}
	}
	return count
}

func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, maxBookings int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	eventDay, err := order.ShippingAddress.EventDay()
	if err != nil {
		return fmt.Errorf("parse event date: %w", err)
	}

	reserve := make(map[string]int)
	for _, item := range order.Items {
		if item.ProductType.IsBookable() {
			if s.countBookings(order.UserID, item.ProductID, eventDay) >= maxBookings {
				return fmt.Errorf("%s: %w", item.Name, store.ErrFullyBooked)
			}
			continue
		}
		reserve[item.ProductID] += item.Quantity
	}

	for productID, qty := range reserve {
		p, ok := s.products[productID]
		if !ok {
			return store.ErrProductNotFound
		}
		if p.CountInStock < qty {
			return fmt.Errorf("%s: %w", p.Name, store.ErrOutOfStock)
		}
	}
	for productID, qty := range reserve {
		s.products[productID].CountInStock -= qty
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	s.stamp(&order.CreatedAt, &order.UpdatedAt)
	stored := cloneOrder(order)
	s.orders[order.ID] = &stored
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) sortedOrders(keep func(*models.Order) bool) []models.Order {
	orders := make([]models.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.sortedOrders(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	orders := s.sortedOrders(func(*models.Order) bool { return true })
	for i := range orders {
		if u, ok := s.users[orders[i].UserID]; ok {
			orders[i].UserName = u.Name
		} else {
			orders[i].UserName = store.DeletedUserName
		}
	}
	return orders, nil
}

func (s *Store) CountBookings(ctx context.Context, userID, productID string, day time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.countBookings(userID, productID, day), nil
}

func (s *Store) SaveTransition(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.orders[order.ID]
	if !ok {
		return store.ErrOrderNotFound
	}
	if existing.Status != from {
		return store.ErrStaleOrder
	}

	updated := cloneOrder(order)
	existing.Status = updated.Status
	existing.IsPaid = updated.IsPaid
	existing.PaidAt = updated.PaidAt
	existing.PaymentResult = updated.PaymentResult
	existing.IsDelivered = updated.IsDelivered
	existing.DeliveredAt = updated.DeliveredAt
	existing.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}
