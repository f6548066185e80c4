// Package notify is the outbound customer messaging port. The API enqueues
// notifications; the notifier process renders and mails them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/pkg/models"
)

// Notifier is best-effort: it never fails the caller's operation.
// Implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Publisher is the queue side of a Notifier.
type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

type QueueNotifier struct {
	publisher Publisher
	logger    *logrus.Logger
}

func NewQueueNotifier(publisher Publisher, logger *logrus.Logger) *QueueNotifier {
	return &QueueNotifier{publisher: publisher, logger: logger}
}

func (q *QueueNotifier) Notify(ctx context.Context, n models.Notification) {
	if err := q.publisher.PublishNotification(ctx, n); err != nil {
		q.logger.WithError(err).WithFields(logrus.Fields{
			"notification_id": n.ID,
			"kind":            n.Kind,
			"recipient":       n.To.Email,
		}).Error("Failed to enqueue notification")
	}
}

// LogNotifier only logs. Used when NOTIFY_TRANSPORT=log.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n models.Notification) {
	fields := logrus.Fields{
		"notification_id": n.ID,
		"kind":            n.Kind,
		"recipient":       n.To.Email,
	}
	if n.Order != nil {
		fields["order_id"] = n.Order.ID
	}
	l.logger.WithFields(fields).Info("Notification")
}

func newNotification(kind models.NotificationKind, u *models.User) models.Notification {
	return models.Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		To:        models.Recipient{Name: u.Name, Email: u.Email},
		CreatedAt: time.Now().UTC(),
	}
}

func Welcome(u *models.User) models.Notification {
	return newNotification(models.NotifyWelcome, u)
}

func ProfileUpdated(u *models.User, changes []models.FieldChange) models.Notification {
	n := newNotification(models.NotifyProfileUpdated, u)
	n.Changes = changes
	return n
}

func OrderConfirmation(u *models.User, o *models.Order) models.Notification {
	n := newNotification(models.NotifyOrderConfirmation, u)
	n.Order = o
	return n
}

func OrderDeleted(u *models.User, o *models.Order) models.Notification {
	n := newNotification(models.NotifyOrderDeleted, u)
	n.Order = o
	return n
}
