package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/pkg/models"
)

const (
	MaxRetries        = 3
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second

	headerMetadata          = "metadata"
	headerRetryCount        = "retry_count"
	headerOriginalTopic     = "original_topic"
	headerOriginalPartition = "original_partition"
	headerOriginalOffset    = "original_offset"
	headerFailureTime       = "failure_time"
)

// ErrMalformed marks messages that can never be processed.
var ErrMalformed = errors.New("malformed notification")

type NotificationHandler interface {
	HandleNotification(ctx context.Context, n models.Notification) error
	IsRetryable(err error) bool
}

type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: MaxRetries, InitialDelay: InitialRetryDelay, MaxDelay: MaxRetryDelay}
}

// Delay returns the wait before retry number attempt (1-based), doubling up to MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

type MessageMetadata struct {
	RetryCount    int       `json:"retry_count"`
	FirstFailure  time.Time `json:"first_failure"`
	LastFailure   time.Time `json:"last_failure"`
	OriginalTopic string    `json:"original_topic"`
	ErrorMessage  string    `json:"error_message"`
}

type ConsumerMetrics struct {
	Processed atomic.Int64
	Retries   atomic.Int64
	DLQ       atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
}

type MetricsSnapshot struct {
	Processed int64 `json:"processed"`
	Retries   int64 `json:"retries"`
	DLQ       int64 `json:"dlq"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

func (m *ConsumerMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Processed: m.Processed.Load(),
		Retries:   m.Retries.Load(),
		DLQ:       m.DLQ.Load(),
		Succeeded: m.Succeeded.Load(),
		Failed:    m.Failed.Load(),
	}
}

// Consumer reads notifications from a consumer group, retries retryable
// failures with exponential backoff, and dead-letters the rest.
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	producer      sarama.SyncProducer
	processor     *messageProcessor
	logger        *logrus.Logger
	topics        []string
}

func NewConsumer(brokers []string, groupID, topic string, handler NotificationHandler, logger *logrus.Logger) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, newConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		consumerGroup.Close()
		return nil, fmt.Errorf("failed to create producer for DLQ: %w", err)
	}

	return &Consumer{
		consumerGroup: consumerGroup,
		producer:      producer,
		processor:     newMessageProcessor(handler, producer, DLQTopic(topic), DefaultRetryPolicy(), logger),
		logger:        logger,
		topics:        []string{topic},
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{processor: c.processor, logger: c.logger}

	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Error("Error consuming from Kafka")
			return err
		}
		if ctx.Err() != nil {
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.producer.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close producer")
	}
	return c.consumerGroup.Close()
}

func (c *Consumer) Metrics() MetricsSnapshot {
	return c.processor.metrics.Snapshot()
}

type consumerGroupHandler struct {
	processor *messageProcessor
	logger    *logrus.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.processor.process(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

type messageProcessor struct {
	handler  NotificationHandler
	producer sarama.SyncProducer
	dlqTopic string
	policy   RetryPolicy
	metrics  *ConsumerMetrics
	logger   *logrus.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

func newMessageProcessor(handler NotificationHandler, producer sarama.SyncProducer, dlqTopic string, policy RetryPolicy, logger *logrus.Logger) *messageProcessor {
	return &messageProcessor{
		handler:  handler,
		producer: producer,
		dlqTopic: dlqTopic,
		policy:   policy,
		metrics:  &ConsumerMetrics{},
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// process handles one message end to end. It never returns an error: failures
// land in the DLQ so the partition keeps moving.
func (p *messageProcessor) process(ctx context.Context, message *sarama.ConsumerMessage) {
	p.metrics.Processed.Add(1)

	err := p.handleWithRetry(ctx, message)
	if err == nil {
		p.metrics.Succeeded.Add(1)
		return
	}
	if ctx.Err() != nil {
		// Shutting down; the uncommitted message is redelivered on restart.
		return
	}

	p.logger.WithError(err).Error("Failed to process message after retries")
	p.metrics.Failed.Add(1)

	if dlqErr := p.sendToDLQ(message, err); dlqErr != nil {
		p.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
		return
	}
	p.metrics.DLQ.Add(1)
}

func (p *messageProcessor) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	p.logger.WithFields(logrus.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
		"key":       string(message.Key),
	}).Debug("Processing Kafka message")

	var n models.Notification
	if err := json.Unmarshal(message.Value, &n); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, n.Kind)
	}

	var err error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.policy.Delay(attempt)
			p.logger.WithFields(logrus.Fields{
				"notification_id": n.ID,
				"attempt":         attempt,
				"delay":           delay.String(),
			}).Info("Retrying notification")

			if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			p.metrics.Retries.Add(1)
		}

		err = p.handler.HandleNotification(ctx, n)
		if err == nil {
			return nil
		}
		if !p.handler.IsRetryable(err) {
			p.logger.WithError(err).WithField("notification_id", n.ID).Error("Non-retryable error encountered")
			return err
		}
		p.logger.WithError(err).WithField("attempt", attempt+1).Warn("Retryable error processing notification")
	}

	return fmt.Errorf("exhausted retries for notification %s: %w", n.ID, err)
}

func extractMetadata(message *sarama.ConsumerMessage) MessageMetadata {
	metadata := MessageMetadata{OriginalTopic: message.Topic}
	for _, header := range message.Headers {
		switch string(header.Key) {
		case headerMetadata:
			json.Unmarshal(header.Value, &metadata)
		case headerRetryCount:
			if count, err := strconv.Atoi(string(header.Value)); err == nil {
				metadata.RetryCount = count
			}
		}
	}
	return metadata
}

func (p *messageProcessor) sendToDLQ(message *sarama.ConsumerMessage, processingError error) error {
	previous := extractMetadata(message)
	now := p.now().UTC()

	metadata := MessageMetadata{
		RetryCount:    previous.RetryCount + 1,
		FirstFailure:  previous.FirstFailure,
		LastFailure:   now,
		OriginalTopic: message.Topic,
		ErrorMessage:  processingError.Error(),
	}
	if metadata.FirstFailure.IsZero() {
		metadata.FirstFailure = now
	}

	metadataBytes, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dlqMessage := &sarama.ProducerMessage{
		Topic: p.dlqTopic,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerMetadata), Value: metadataBytes},
			{Key: []byte(headerOriginalTopic), Value: []byte(message.Topic)},
			{Key: []byte(headerOriginalPartition), Value: []byte(strconv.Itoa(int(message.Partition)))},
			{Key: []byte(headerOriginalOffset), Value: []byte(strconv.FormatInt(message.Offset, 10))},
			{Key: []byte(headerFailureTime), Value: []byte(now.Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"dlq_topic":     p.dlqTopic,
		"dlq_partition": partition,
		"dlq_offset":    offset,
		"original_key":  string(message.Key),
		"error":         processingError.Error(),
	}).Warn("Message sent to dead letter queue")

	return nil
}
