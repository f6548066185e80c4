// Package events carries storefront notifications over Kafka: a producer used by
// the API, a retrying consumer group used by the notifier, and DLQ tooling.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/vjcreations/storefront/pkg/models"
)

const (
	DefaultNotificationTopic = "storefront.notifications"
	dlqSuffix                = ".dlq"

	headerKind = "kind"
)

func DLQTopic(topic string) string {
	return topic + dlqSuffix
}

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0
	return config
}

func newConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_6_0_0
	return config
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

func NewProducer(brokers []string, topic string, logger *logrus.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewProducerWithClient(producer, topic, logger), nil
}

// NewProducerWithClient wraps an existing sync producer.
func NewProducerWithClient(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// PublishNotification sends n keyed by recipient so one customer's messages stay ordered.
func (p *Producer) PublishNotification(ctx context.Context, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.To.Email),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerKind), Value: []byte(n.Kind)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("notification_id", n.ID).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":           p.topic,
		"partition":       partition,
		"offset":          offset,
		"notification_id": n.ID,
		"kind":            n.Kind,
	}).Info("Notification published to Kafka")

	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
