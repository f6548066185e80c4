package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/auth"
	"github.com/vjcreations/storefront/internal/cache"
	"github.com/vjcreations/storefront/internal/catalog"
	"github.com/vjcreations/storefront/internal/chat"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/internal/config"
	"github.com/vjcreations/storefront/internal/events"
	"github.com/vjcreations/storefront/internal/notify"
	"github.com/vjcreations/storefront/internal/orders"
	"github.com/vjcreations/storefront/internal/reporting"
	"github.com/vjcreations/storefront/internal/server"
	"github.com/vjcreations/storefront/internal/store/postgres"
	"github.com/vjcreations/storefront/internal/telemetry"
	"github.com/vjcreations/storefront/internal/upload"
	"github.com/vjcreations/storefront/internal/websocket"
)

func main() {
	bootstrap := config.NewLogger("info")
	config.LoadEnv(bootstrap)

	cfg, err := config.Load()
	if err != nil {
		bootstrap.WithError(err).Fatal("Failed to load configuration")
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		logger.WithError(err).Fatal("Storefront API stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Env, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnectAttempts: cfg.DBConnectAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	productCache, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	breakers := circuitbreaker.NewManager(logger)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	authenticator := auth.NewAuthenticator(db, tokens, notifier, auth.Options{SeedAdminEmail: cfg.SeedAdminEmail}, logger)
	guard := auth.NewGuard(authenticator, logger)

	products := catalog.NewService(db, productCache, logger)

	feed := websocket.NewHub(authenticator, cfg.AllowedOrigins, logger)
	go feed.Run(ctx)

	ledger := orders.NewLedger(db, db, db, notifier, feed, productCache, orders.Config{
		Pricing:          cfg.Pricing,
		MaxDailyBookings: cfg.MaxDailyBookings,
	}, logger)

	uploads := upload.NewClient(upload.Config{
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
	}, breakers, logger)

	handler := server.NewRouter(server.Handlers{
		Users:     auth.NewHandler(authenticator, logger),
		Products:  catalog.NewHandler(products, logger),
		Reporting: reporting.NewHandler(db, logger),
		Orders:    orders.NewHandler(ledger, logger),
		Upload:    upload.NewHandler(uploads, logger),
		Chat:      chat.NewHandler(chat.NewBot(products), logger),
		Feed:      feed,
	}, guard, db, breakers, server.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		PayPalClientID: cfg.PayPalClientID,
	}, logger)

	logger.WithFields(logrus.Fields{
		"env":              cfg.Env,
		"notify_transport": cfg.NotifyTransport,
		"cache":            cfg.RedisAddr != "",
	}).Info("Storefront API configured")

	return server.Run(ctx, server.New(":"+cfg.HTTPPort, handler), logger)
}

// newCache falls back to no caching when Redis is not configured or unreachable.
func newCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (catalog.Cache, func()) {
	if cfg.RedisAddr == "" {
		return cache.Nop{}, func() {}
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, product cache disabled")
		return cache.Nop{}, func() {}
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Product cache connected")
	return cache.NewRedis(client, "storefront:products", cfg.CacheTTL, logger), func() { client.Close() }
}

func newNotifier(cfg *config.Config, logger *logrus.Logger) (notify.Notifier, func(), error) {
	if cfg.NotifyTransport == "log" {
		return notify.NewLogNotifier(logger), func() {}, nil
	}
	producer, err := events.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return notify.NewQueueNotifier(producer, logger), func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close Kafka producer")
		}
	}, nil
}
