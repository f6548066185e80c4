package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/pkg/models"
)

const smtpBreakerName = "smtp"

// SMTPBreakerConfig is the breaker guarding the mail server.
func SMTPBreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, ErrInvalidRecipient) && !errors.Is(err, context.Canceled)
		},
	}
}

// Dispatcher renders queued notifications and mails them. It is the handler
// behind the notifier's Kafka consumer.
type Dispatcher struct {
	renderer *Renderer
	mailer   Mailer
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewDispatcher(renderer *Renderer, mailer Mailer, breakers *circuitbreaker.Manager, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		renderer: renderer,
		mailer:   mailer,
		breaker:  breakers.GetOrCreate(smtpBreakerName, SMTPBreakerConfig()),
		logger:   logger,
	}
}

func (d *Dispatcher) HandleNotification(ctx context.Context, n models.Notification) error {
	email, err := d.renderer.Render(n)
	if err != nil {
		return err
	}

	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.mailer.Send(ctx, email)
	})
	if err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"kind":            n.Kind,
		"recipient":       n.To.Email,
	}).Info("Notification sent")
	return nil
}

// IsRetryable reports whether a later attempt could succeed. Rendering and
// addressing problems are permanent; transport failures and an open breaker are not.
func (d *Dispatcher) IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRender), errors.Is(err, ErrInvalidRecipient):
		return false
	default:
		return true
	}
}
