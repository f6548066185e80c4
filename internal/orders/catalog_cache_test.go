package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/cache"
	"github.com/vjcreations/storefront/internal/catalog"
	"github.com/vjcreations/storefront/internal/notify/notifytest"
	"github.com/vjcreations/storefront/internal/pricing"
)

func TestCreateInvalidatesCatalogOnlyForGoods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.place(t, f.customer)
	assert.Zero(t, f.cache.Count(), "service bookings reserve no stock")

	_, err := f.ledger.Create(ctx, f.customer, checkout("2026-12-21", CartItem{ProductID: f.lamp.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.Count())

	_, err = f.ledger.Create(ctx, f.customer, checkout("2026-12-22", CartItem{ProductID: f.lamp.ID, Quantity: 5}))
	require.Error(t, err)
	assert.Equal(t, 1, f.cache.Count(), "failed reservations leave the cache alone")
}

func TestCatalogServesReservedStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	productCache := cache.NewRedis(client, "test:products", time.Minute, logger)
	products := catalog.NewService(f.store, productCache, logger)
	ledger := NewLedger(f.store, f.store, f.store, &notifytest.Recorder{}, f.feed, productCache, Config{Pricing: pricing.DefaultPolicy()}, logger)

	before, err := products.GetByID(ctx, f.lamp.ID)
	require.NoError(t, err)
	require.Equal(t, 2, before.CountInStock)
	bySlug, err := products.GetBySlug(ctx, f.lamp.Slug)
	require.NoError(t, err)
	require.Equal(t, 2, bySlug.CountInStock)

	_, err = ledger.Create(ctx, f.customer, checkout("2026-12-20", CartItem{ProductID: f.lamp.ID, Quantity: 2}))
	require.NoError(t, err)

	after, err := products.GetByID(ctx, f.lamp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.CountInStock)

	bySlug, err = products.GetBySlug(ctx, f.lamp.Slug)
	require.NoError(t, err)
	assert.Equal(t, 0, bySlug.CountInStock)
}
