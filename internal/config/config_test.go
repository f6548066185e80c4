package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.HTTPPort)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.MaxDailyBookings)
	assert.Equal(t, "admin@example.com", cfg.SeedAdminEmail)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "10", cfg.Pricing.ShippingFee.String())
	assert.Equal(t, "100000", cfg.Pricing.FreeShippingThreshold.String())
	assert.Equal(t, "0.06", cfg.Pricing.TaxRate.String())
	assert.Equal(t, "sb", cfg.PayPalClientID)
	assert.Equal(t, 1, cfg.DBConnectAttempts)
	assert.False(t, cfg.DLQReplay)
	assert.Equal(t, 30*time.Second, cfg.DLQReplayDelay)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("NOTIFY_TRANSPORT", "LOG")
	t.Setenv("MAX_DAILY_BOOKINGS", "5")
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("SEED_ADMIN_EMAIL", "Owner@VJ.lk")
	t.Setenv("DLQ_REPLAY", "true")
	t.Setenv("DLQ_REPLAY_DELAY", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "log", cfg.NotifyTransport)
	assert.Equal(t, 5, cfg.MaxDailyBookings)
	assert.Equal(t, "0.08", cfg.Pricing.TaxRate.String())
	assert.Equal(t, "owner@vj.lk", cfg.SeedAdminEmail)
	assert.True(t, cfg.DLQReplay)
	assert.Equal(t, 2*time.Minute, cfg.DLQReplayDelay)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		t.Setenv("NOTIFY_TRANSPORT", "carrier-pigeon")
		_, err := Load()
		assert.ErrorContains(t, err, "NOTIFY_TRANSPORT")
	})
	t.Run("ttl", func(t *testing.T) {
		t.Setenv("TOKEN_TTL", "forever")
		_, err := Load()
		assert.ErrorContains(t, err, "TOKEN_TTL")
	})
	t.Run("bookings", func(t *testing.T) {
		t.Setenv("MAX_DAILY_BOOKINGS", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "MAX_DAILY_BOOKINGS")
	})
	t.Run("tax", func(t *testing.T) {
		t.Setenv("TAX_RATE", "six percent")
		_, err := Load()
		assert.ErrorContains(t, err, "TAX_RATE")
	})
}

func TestProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-long-random-production-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "a-long-random-production-secret", cfg.JWTSecret)
}

func TestDevelopmentAcceptsDefaultJWTSecret(t *testing.T) {
	for _, env := range []string{"local", "development"} {
		t.Setenv("APP_ENV", env)
		_, err := Load()
		assert.NoError(t, err, env)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger("chatty").GetLevel())
}
