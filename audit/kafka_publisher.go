package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaPublisher is a fire-and-forget publisher. Delivery failures surface
// only in the log.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger
}

func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Flush.Messages = 100

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to start kafka producer: %w", err)
	}

	return newKafkaPublisher(producer, logger), nil
}

func newKafkaPublisher(producer sarama.AsyncProducer, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		logger:   logger.With("component", "kafka_publisher"),
	}
	go p.drainErrors()
	return p
}

func (k *KafkaPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Metadata.ID.String()),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaPublisher) drainErrors() {
	for err := range k.producer.Errors() {
		k.logger.Error("failed to send audit event to kafka", "topic", err.Msg.Topic, "error", err.Err)
	}
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
