package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/config"
	"github.com/vjcreations/storefront/internal/events"
)

func main() {
	bootstrap := config.NewLogger("info")
	config.LoadEnv(bootstrap)

	cfg, err := config.Load()
	if err != nil {
		bootstrap.WithError(err).Fatal("Failed to load configuration")
	}
	logger := config.NewLogger(cfg.LogLevel)

	processor, err := events.NewDLQProcessor(cfg.KafkaBrokers, cfg.DLQGroup, cfg.NotificationTopic, events.DLQOptions{
		Replay:      cfg.DLQReplay,
		ReplayDelay: cfg.DLQReplayDelay,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create DLQ processor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"topic":  events.DLQTopic(cfg.NotificationTopic),
		"replay": cfg.DLQReplay,
	}).Info("DLQ monitor started")

	if err := processor.ProcessDLQ(ctx); err != nil {
		logger.WithError(err).Error("DLQ processor stopped with error")
	}

	logger.Info("Shutting down DLQ monitor...")
	if err := processor.Close(); err != nil {
		logger.WithError(err).Error("Failed to close DLQ processor")
	}
}
