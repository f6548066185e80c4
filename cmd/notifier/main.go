package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/internal/config"
	"github.com/vjcreations/storefront/internal/events"
	"github.com/vjcreations/storefront/internal/notify"
)

func main() {
	bootstrap := config.NewLogger("info")
	config.LoadEnv(bootstrap)

	cfg, err := config.Load()
	if err != nil {
		bootstrap.WithError(err).Fatal("Failed to load configuration")
	}
	logger := config.NewLogger(cfg.LogLevel)

	renderer, err := notify.NewRenderer()
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse email templates")
	}
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	dispatcher := notify.NewDispatcher(renderer, mailer, circuitbreaker.NewManager(logger), logger)

	consumer, err := events.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.NotificationTopic, dispatcher, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic": cfg.NotificationTopic,
		"group": cfg.ConsumerGroup,
		"smtp":  cfg.SMTP.Host,
	}).Info("Notifier started")

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Error("Consumer stopped with error")
	}

	metrics := consumer.Metrics()
	logger.WithFields(logrus.Fields{
		"processed": metrics.Processed,
		"succeeded": metrics.Succeeded,
		"retries":   metrics.Retries,
		"dlq":       metrics.DLQ,
		"failed":    metrics.Failed,
	}).Info("Shutting down notifier...")

	if err := consumer.Close(); err != nil {
		logger.WithError(err).Error("Failed to close consumer")
	}
}
