package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/pkg/models"
)

// MaxReplays bounds how often one message may travel DLQ -> topic -> DLQ.
const MaxReplays = MaxRetries * 2

var ErrReplayLimit = errors.New("exceeded maximum replay attempts")

type DLQOptions struct {
	// Replay republishes dead letters to their original topic after ReplayDelay.
	Replay      bool
	ReplayDelay time.Duration
}

// DLQProcessor watches a dead letter topic, logs every message and optionally replays it.
type DLQProcessor struct {
	consumer sarama.ConsumerGroup
	producer sarama.SyncProducer
	topic    string
	options  DLQOptions
	logger   *logrus.Logger
	now      func() time.Time
}

func NewDLQProcessor(brokers []string, groupID, topic string, options DLQOptions, logger *logrus.Logger) (*DLQProcessor, error) {
	consumer, err := sarama.NewConsumerGroup(brokers, groupID, newConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ consumer: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return newDLQProcessor(consumer, producer, topic, options, logger), nil
}

func newDLQProcessor(consumer sarama.ConsumerGroup, producer sarama.SyncProducer, topic string, options DLQOptions, logger *logrus.Logger) *DLQProcessor {
	if options.ReplayDelay <= 0 {
		options.ReplayDelay = 30 * time.Second
	}
	return &DLQProcessor{
		consumer: consumer,
		producer: producer,
		topic:    topic,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *DLQProcessor) ProcessDLQ(ctx context.Context) error {
	handler := &dlqConsumerHandler{processor: p}
	topics := []string{DLQTopic(p.topic)}

	for {
		if err := p.consumer.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			p.logger.WithError(err).Error("Error consuming from DLQ")
			return err
		}
		if ctx.Err() != nil {
			p.logger.Info("DLQ processor context cancelled")
			return nil
		}
	}
}

// Inspect logs a dead-lettered message with its failure metadata.
func (p *DLQProcessor) Inspect(message *sarama.ConsumerMessage) MessageMetadata {
	metadata := extractMetadata(message)

	fields := logrus.Fields{
		"topic":          message.Topic,
		"partition":      message.Partition,
		"offset":         message.Offset,
		"key":            string(message.Key),
		"original_topic": metadata.OriginalTopic,
		"retry_count":    metadata.RetryCount,
		"first_failure":  metadata.FirstFailure,
		"last_failure":   metadata.LastFailure,
		"error_message":  metadata.ErrorMessage,
	}

	var n models.Notification
	if err := json.Unmarshal(message.Value, &n); err == nil {
		fields["notification_id"] = n.ID
		fields["kind"] = n.Kind
		fields["recipient"] = n.To.Email
		if n.Order != nil {
			fields["order_id"] = n.Order.ID
		}
	}

	p.logger.WithFields(fields).Warn("DLQ message detected")
	return metadata
}

// ReplayMessage republishes message to the topic it originally failed on.
func (p *DLQProcessor) ReplayMessage(message *sarama.ConsumerMessage) error {
	metadata := extractMetadata(message)

	if metadata.RetryCount >= MaxReplays {
		p.logger.WithFields(logrus.Fields{
			"key":         string(message.Key),
			"retry_count": metadata.RetryCount,
		}).Error("Message exceeded maximum replay attempts")
		return ErrReplayLimit
	}

	target := metadata.OriginalTopic
	if target == "" || target == message.Topic {
		target = p.topic
	}

	replayMessage := &sarama.ProducerMessage{
		Topic: target,
		Key:   sarama.ByteEncoder(message.Key),
		Value: sarama.ByteEncoder(message.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerRetryCount), Value: []byte(strconv.Itoa(metadata.RetryCount))},
			{Key: []byte("replayed_from_dlq"), Value: []byte("true")},
			{Key: []byte("replay_time"), Value: []byte(p.now().UTC().Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(replayMessage)
	if err != nil {
		return fmt.Errorf("failed to replay message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"replay_topic":     target,
		"replay_partition": partition,
		"replay_offset":    offset,
		"key":              string(message.Key),
	}).Info("Message replayed from DLQ")

	return nil
}

func (p *DLQProcessor) Close() error {
	if err := p.producer.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close producer")
	}
	return p.consumer.Close()
}

type dlqConsumerHandler struct {
	processor *DLQProcessor
}

func (h *dlqConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	h.processor.logger.Info("DLQ consumer session setup")
	return nil
}

func (h *dlqConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.processor.logger.Info("DLQ consumer session cleanup")
	return nil
}

func (h *dlqConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.processor.Inspect(message)

			if h.processor.options.Replay {
				if err := sleepContext(ctx, h.processor.options.ReplayDelay); err != nil {
					return nil
				}
				if err := h.processor.ReplayMessage(message); err != nil {
					h.processor.logger.WithError(err).Error("Failed to replay DLQ message")
				}
			}

			session.MarkMessage(message, "")

		case <-ctx.Done():
			return nil
		}
	}
}
