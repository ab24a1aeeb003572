package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/godamri/helix-audit/audit"
)

type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RetryTimeout(10 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create franz-go client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka: failed to ping brokers: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger.With("component", "kafka_producer"),
	}, nil
}

// Publish encodes the event and blocks until the broker acknowledges it. The
// record key is the event id so redeliveries land on the same partition.
func (p *Producer) Publish(ctx context.Context, topic string, event *audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	return p.Send(ctx, topic, event.Metadata.ID.String(), payload)
}

// Send produces a raw record synchronously.
func (p *Producer) Send(ctx context.Context, topic, key string, payload []byte) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: injectHeaders(ctx),
	}

	res := p.client.ProduceSync(ctx, record)
	if err := res.FirstErr(); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("kafka publish failed: %w", err)
	}

	p.logger.DebugContext(ctx, "Message published", "topic", topic, "key", key)
	return nil
}

// Ping checks broker connectivity. Used by readiness probes.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka Producer...")
	p.client.Close() // Blocks until buffered messages are flushed
	return nil
}

func injectHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]kgo.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return headers
}

func extractHeaders(ctx context.Context, headers []kgo.RecordHeader) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
