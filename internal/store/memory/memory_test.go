package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/apperr"
	"github.com/vjcreations/storefront/internal/store"
	"github.com/vjcreations/storefront/pkg/models"
)

func seedProduct(t *testing.T, s *Store, name string, typ models.ProductType, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:         name,
		Slug:         name,
		Type:         typ,
		Brand:        "VJ",
		Category:     "Decor",
		Price:        decimal.RequireFromString(price),
		CountInStock: stock,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func newOrder(userID, date string, items ...models.OrderItem) *models.Order {
	return &models.Order{
		UserID: userID,
		Items:  items,
		ShippingAddress: models.ShippingAddress{
			FullName:  "Nimal Perera",
			Address:   "12 Temple Rd",
			City:      "Kandy",
			EventDate: date,
			EventTime: "18:30",
		},
		PaymentMethod: models.PaymentCashOnDelivery,
		TotalPrice:    decimal.NewFromInt(100),
		Status:        models.StatusUnpaid,
	}
}

func line(p *models.Product, qty int) models.OrderItem {
	return models.OrderItem{ProductID: p.ID, Name: p.Name, ProductType: p.Type, Price: p.Price, Quantity: qty}
}

func TestPlaceOrderEnforcesDailyBookingLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	hall := seedProduct(t, s, "wedding-hall-decor", models.ProductTypeService, "50000", 0)
	day := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		n, err := s.CountBookings(ctx, "u1", hall.ID, day)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		require.NoError(t, s.PlaceOrder(ctx, newOrder("u1", "2026-12-20", line(hall, 1)), 3))
	}

	err := s.PlaceOrder(ctx, newOrder("u1", "2026-12-20", line(hall, 1)), 3)
	assert.ErrorIs(t, err, store.ErrFullyBooked)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Other customers and other days are unaffected.
	require.NoError(t, s.PlaceOrder(ctx, newOrder("u2", "2026-12-20", line(hall, 1)), 3))
	require.NoError(t, s.PlaceOrder(ctx, newOrder("u1", "2026-12-21", line(hall, 1)), 3))

	n, err := s.CountBookings(ctx, "u1", hall.ID, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPlaceOrderReservesStock(t *testing.T) {
	ctx := context.Background()
	s := New()
	vase := seedProduct(t, s, "crystal-vase", models.ProductTypeGood, "2500", 5)
	candle := seedProduct(t, s, "candle-set", models.ProductTypeGood, "800", 1)

	require.NoError(t, s.PlaceOrder(ctx, newOrder("u1", "2026-12-20", line(vase, 3)), 3))
	got, err := s.GetProduct(ctx, vase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CountInStock)

	// A failing line leaves every other line's stock untouched.
	err = s.PlaceOrder(ctx, newOrder("u1", "2026-12-20", line(vase, 1), line(candle, 2)), 3)
	assert.ErrorIs(t, err, store.ErrOutOfStock)

	got, err = s.GetProduct(ctx, vase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CountInStock)

	orders, err := s.ListOrdersByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPlaceOrderConcurrentBookings(t *testing.T) {
	ctx := context.Background()
	s := New()
	stage := seedProduct(t, s, "stage-setup", models.ProductTypeService, "75000", 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.PlaceOrder(ctx, newOrder("u1", "2026-12-24", line(stage, 1)), 3); err == nil {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
}

func TestSaveTransitionRejectsStaleStatus(t *testing.T) {
	ctx := context.Background()
	s := New()
	order := newOrder("u1", "2026-12-20")
	require.NoError(t, s.PlaceOrder(ctx, order, 3))

	first, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	second, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, first.MarkPaid(now, nil))
	require.NoError(t, s.SaveTransition(ctx, first, models.StatusUnpaid))

	require.NoError(t, second.MarkPaid(now, nil))
	assert.ErrorIs(t, s.SaveTransition(ctx, second, models.StatusUnpaid), store.ErrStaleOrder)

	stored, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	require.NotNil(t, stored.PaidAt)
	assert.Equal(t, models.StatusPaid, stored.Status)
}

func TestReadsDoNotAliasStoredState(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := seedProduct(t, s, "balloon-arch", models.ProductTypeGood, "1500", 10)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	got.CountInStock = 0
	got.Reviews = append(got.Reviews, models.Review{Name: "ghost", Rating: 1})

	again, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, again.CountInStock)
	assert.Empty(t, again.Reviews)
}

func TestDuplicatesAreConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := seedProduct(t, s, "flower-wall", models.ProductTypeService, "30000", 0)

	err := s.CreateProduct(ctx, &models.Product{Name: "flower-wall", Slug: "other"})
	assert.ErrorIs(t, err, store.ErrDuplicateProduct)

	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "A", Email: "a@vj.lk"}))
	err = s.CreateUser(ctx, &models.User{Name: "B", Email: "A@VJ.lk"})
	assert.ErrorIs(t, err, store.ErrEmailTaken)

	_, err = s.AddReview(ctx, p.ID, models.Review{Name: "A", Rating: 5})
	require.NoError(t, err)
	updated, err := s.AddReview(ctx, p.ID, models.Review{Name: "B", Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.NumReviews)
	assert.InDelta(t, 4.5, updated.Rating, 0.0001)

	_, err = s.AddReview(ctx, p.ID, models.Review{Name: "A", Rating: 1})
	assert.ErrorIs(t, err, store.ErrDuplicateReview)
}

func TestListOrdersJoinsUserName(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &models.User{Name: "Kamala", Email: "kamala@vj.lk"}
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.PlaceOrder(ctx, newOrder(u.ID, "2026-12-20"), 3))
	require.NoError(t, s.PlaceOrder(ctx, newOrder("gone", "2026-12-20"), 3))

	orders, err := s.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	names := map[string]string{}
	for _, o := range orders {
		names[o.UserID] = o.UserName
	}
	assert.Equal(t, "Kamala", names[u.ID])
	assert.Equal(t, store.DeletedUserName, names["gone"])
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, fixture := range []struct {
		name, category, price string
	}{
		{"gold-chair-cover", "Decor", "300"},
		{"silver-chair-cover", "Decor", "250"},
		{"dj-booth", "Entertainment", "40000"},
	} {
		created := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return created }
		seedProduct(t, s, fixture.name, models.ProductTypeGood, fixture.price, 1)
		p, _ := s.GetProductBySlug(ctx, fixture.name)
		s.products[p.ID].Category = fixture.category
	}

	lo := decimal.NewFromInt(200)
	hi := decimal.NewFromInt(1000)
	products, total, err := s.SearchProducts(ctx, store.ProductFilter{
		Query:    "CHAIR",
		Category: "Decor",
		MinPrice: &lo,
		MaxPrice: &hi,
		Order:    store.SortLowest,
		Page:     1,
		PageSize: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, products, 2)
	assert.Equal(t, "silver-chair-cover", products[0].Name)

	products, total, err = s.SearchProducts(ctx, store.ProductFilter{Order: store.SortNewest, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, products, 1)
	assert.Equal(t, "gold-chair-cover", products[0].Name)

	categories, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Decor", "Entertainment"}, categories)
}

func TestSummaryAggregates(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = func() time.Time { return time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "A", Email: "a@vj.lk", City: "Kandy"}))
	vase := seedProduct(t, s, "crystal-vase", models.ProductTypeGood, "2500", 10)

	paid := newOrder("u1", "2026-04-01", line(vase, 2))
	paid.TotalPrice = decimal.NewFromInt(5000)
	require.NoError(t, s.PlaceOrder(ctx, paid, 3))
	require.NoError(t, paid.MarkPaid(s.now(), nil))
	require.NoError(t, s.SaveTransition(ctx, paid, models.StatusUnpaid))

	unpaid := newOrder("u1", "2026-04-02", line(vase, 1))
	unpaid.TotalPrice = decimal.NewFromInt(2500)
	unpaid.PaymentMethod = models.PaymentPayPal
	require.NoError(t, s.PlaceOrder(ctx, unpaid, 3))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Users)
	assert.Equal(t, 2, summary.Orders)
	assert.True(t, decimal.NewFromInt(7500).Equal(summary.TotalSales))
	assert.Equal(t, 1, summary.UnpaidOrders.Orders)
	assert.Equal(t, 2, summary.UndeliveredOrders.Orders)
	assert.Len(t, summary.PaymentMethods, 2)
	require.Len(t, summary.MonthlyOrders, 1)
	assert.Equal(t, "2026-03", summary.MonthlyOrders[0].Key)
	require.Len(t, summary.TopSellingProducts, 1)
	assert.Equal(t, 3, summary.TopSellingProducts[0].Quantity)
	assert.Equal(t, []models.CountBucket{{Key: "Kandy", Count: 2}}, summary.OrdersByCity)

	stats, err := s.SellerStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.BrandSales, 1)
	assert.Equal(t, "VJ", stats.BrandSales[0].Brand)
	assert.True(t, decimal.NewFromInt(7500).Equal(stats.BrandSales[0].Sales))
}

func TestNotFoundErrors(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetOrder(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrOrderNotFound))
	assert.ErrorIs(t, s.DeleteOrder(ctx, "missing"), store.ErrOrderNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, "missing"), store.ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteProduct(ctx, "missing"), store.ErrProductNotFound)
}
