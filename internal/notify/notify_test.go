package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vjcreations/storefront/internal/circuitbreaker"
	"github.com/vjcreations/storefront/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var customer = &models.User{ID: "u-1", Name: "Kamala Perera", Email: "kamala@vj.lk"}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:     "o-77",
		UserID: customer.ID,
		Items: []models.OrderItem{
			{Name: "Floral Arch", Quantity: 1, Price: decimal.RequireFromString("45000")},
			{Name: "Fairy Lights", Quantity: 3, Price: decimal.RequireFromString("1250.5")},
		},
		ShippingAddress: models.ShippingAddress{
			Address:   "12 Lake Road",
			City:      "Kandy",
			EventDate: "2026-12-05",
			EventTime: "18:30",
		},
		TotalPrice: decimal.RequireFromString("48761.5"),
	}
}

type fakeMailer struct {
	err  error
	sent []Email
}

func (m *fakeMailer) Send(ctx context.Context, email Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishNotification(ctx context.Context, n models.Notification) error {
	p.calls++
	return errors.New("kafka: client has run out of available brokers")
}

func TestConstructors(t *testing.T) {
	before := time.Now().UTC()
	n := OrderConfirmation(customer, sampleOrder())

	assert.Equal(t, models.NotifyOrderConfirmation, n.Kind)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.Recipient{Name: "Kamala Perera", Email: "kamala@vj.lk"}, n.To)
	assert.Equal(t, "o-77", n.Order.ID)
	assert.False(t, n.CreatedAt.Before(before))

	changes := []models.FieldChange{{Field: "city", Value: "Galle"}}
	assert.Equal(t, changes, ProfileUpdated(customer, changes).Changes)
	assert.NotEqual(t, Welcome(customer).ID, Welcome(customer).ID)
}

func TestQueueNotifierSwallowsPublishErrors(t *testing.T) {
	publisher := &failingPublisher{}
	q := NewQueueNotifier(publisher, quietLogger())

	assert.NotPanics(t, func() { q.Notify(context.Background(), Welcome(customer)) })
	assert.Equal(t, 1, publisher.calls)
}

func TestRenderOrderConfirmation(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	email, err := r.Render(OrderConfirmation(customer, sampleOrder()))
	require.NoError(t, err)

	assert.Equal(t, "Order Confirmation", email.Subject)
	assert.Equal(t, "kamala@vj.lk", email.To.Email)
	assert.Contains(t, email.HTML, "Hello Kamala Perera,")
	assert.Contains(t, email.HTML, "Floral Arch - Quantity: 1, Price: 45000.00")
	assert.Contains(t, email.HTML, "Fairy Lights - Quantity: 3, Price: 1250.50")
	assert.Contains(t, email.HTML, "Total Price: 48761.50")
	assert.Contains(t, email.HTML, "December 5, 2026")
	assert.Contains(t, email.HTML, "06:30 PM")
}

func TestRenderSubjects(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	cases := []struct {
		n       models.Notification
		subject string
		body    string
	}{
		{Welcome(customer), "Welcome to VJ-Creations", "Your account has been created"},
		{ProfileUpdated(customer, []models.FieldChange{{Field: "city", Value: "Galle"}}), "Profile Updated", "city: Galle"},
		{OrderDeleted(customer, sampleOrder()), "Order Deletion Notification", "o-77"},
	}
	for _, tc := range cases {
		t.Run(string(tc.n.Kind), func(t *testing.T) {
			email, err := r.Render(tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.subject, email.Subject)
			assert.Contains(t, email.HTML, tc.body)
		})
	}
}

func TestRenderEscapesUserInput(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	email, err := r.Render(Welcome(&models.User{Name: "<script>x</script>", Email: "a@b.lk"}))
	require.NoError(t, err)
	assert.NotContains(t, email.HTML, "<script>")
}

func TestRenderRejectsBadNotifications(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(models.Notification{Kind: "sms"})
	assert.ErrorIs(t, err, ErrRender)

	_, err = r.Render(models.Notification{Kind: models.NotifyOrderDeleted})
	assert.ErrorIs(t, err, ErrRender)
}

func newTestDispatcher(t *testing.T, mailer Mailer) (*Dispatcher, *circuitbreaker.Manager) {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	breakers := circuitbreaker.NewManager(quietLogger())
	return NewDispatcher(r, mailer, breakers, quietLogger()), breakers
}

func TestDispatcherSends(t *testing.T) {
	mailer := &fakeMailer{}
	d, _ := newTestDispatcher(t, mailer)

	require.NoError(t, d.HandleNotification(context.Background(), Welcome(customer)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Welcome to VJ-Creations", mailer.sent[0].Subject)
}

func TestDispatcherOpensBreakerOnTransportFailures(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("dial tcp: connection refused")}
	d, breakers := newTestDispatcher(t, mailer)

	for i := 0; i < SMTPBreakerConfig().MaxFailures; i++ {
		err := d.HandleNotification(context.Background(), Welcome(customer))
		require.Error(t, err)
		assert.True(t, d.IsRetryable(err))
	}

	err := d.HandleNotification(context.Background(), Welcome(customer))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.True(t, d.IsRetryable(err))
	assert.True(t, breakers.AnyOpen())
}

func TestDispatcherInvalidRecipientIsPermanent(t *testing.T) {
	mailer := &fakeMailer{err: fmt.Errorf("%w %q", ErrInvalidRecipient, "not-an-address")}
	d, breakers := newTestDispatcher(t, mailer)

	for i := 0; i < 10; i++ {
		err := d.HandleNotification(context.Background(), Welcome(customer))
		assert.False(t, d.IsRetryable(err))
	}
	assert.False(t, breakers.AnyOpen())
}

func TestDispatcherRenderErrorIsPermanent(t *testing.T) {
	mailer := &fakeMailer{}
	d, _ := newTestDispatcher(t, mailer)

	err := d.HandleNotification(context.Background(), models.Notification{Kind: models.NotifyOrderConfirmation})
	assert.ErrorIs(t, err, ErrRender)
	assert.False(t, d.IsRetryable(err))
	assert.Empty(t, mailer.sent)
}

func TestSMTPMailerRejectsInvalidRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, From: "no-reply@vjcreations.lk"})

	err := m.Send(context.Background(), Email{To: models.Recipient{Email: "not an address"}, Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}
