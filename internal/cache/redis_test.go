package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return mr, NewRedis(client, "test:catalog", time.Minute, logger)
}

func TestGetMissing(t *testing.T) {
	_, c := setupTestRedis(t)

	var got entry
	found, err := c.Get(context.Background(), "products", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetThenGet(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "categories", entry{Name: "all", Items: []string{"Arches", "Lighting"}}))

	var got entry
	found, err := c.Get(ctx, "categories", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"Arches", "Lighting"}, got.Items)
}

func TestEntriesExpire(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "products", entry{Name: "all"}))
	mr.FastForward(2 * time.Minute)

	var got entry
	found, err := c.Get(ctx, "products", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidateDropsEveryEntry(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "product:id:1", entry{Name: "arch"}))
	require.NoError(t, c.Set(ctx, "product:slug:arch", entry{Name: "arch"}))
	require.NoError(t, c.Invalidate(ctx))

	var got entry
	for _, name := range []string{"product:id:1", "product:slug:arch"} {
		found, err := c.Get(ctx, name, &got)
		require.NoError(t, err)
		assert.False(t, found, name)
	}

	require.NoError(t, c.Set(ctx, "product:id:1", entry{Name: "arch v2"}))
	found, err := c.Get(ctx, "product:id:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "arch v2", got.Name)
}

func TestGetFailsWhenRedisIsDown(t *testing.T) {
	mr, c := setupTestRedis(t)
	mr.Close()

	var got entry
	_, err := c.Get(context.Background(), "products", &got)
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}
