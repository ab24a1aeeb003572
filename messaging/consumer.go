package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/godamri/helix-audit/pkg/contextx"
)

// ConsumerConfig holds configuration for the Kafka consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// MaxRetries defines how many times to retry a message before giving up.
	// Set to 0 for infinite retries.
	MaxRetries int
	// InitialBackoff defines the wait time for the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration
}

// HandlerFunc defines the signature for message processing.
// Return error to trigger Retry; an error with a Permanent() method returning
// true is not retried.
// Return nil to Commit Offset (Success or Poison Pill).
type HandlerFunc func(ctx context.Context, key, payload []byte) error

// ErrPoisonRecord marks a record dropped without retries.
var ErrPoisonRecord = errors.New("poison record")

type permanent interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

type Consumer struct {
	client    *kgo.Client
	logger    *slog.Logger
	cfg       ConsumerConfig
	handler   HandlerFunc
	closeOnce sync.Once
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger, handler HandlerFunc) (*Consumer, error) {
	cfg = withBackoffDefaults(cfg)

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		// Offsets are committed manually after each record for at-least-once delivery.
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &Consumer{
		client:  client,
		logger:  logger.With("component", "kafka_consumer", "topic", cfg.Topic),
		cfg:     cfg,
		handler: handler,
	}, nil
}

func withBackoffDefaults(cfg ConsumerConfig) ConsumerConfig {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return cfg
}

// Start begins the consumption loop. It blocks until context is cancelled or
// the consumer is closed. Records are handled one at a time.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting consumer", "group", c.cfg.GroupID)

	for {
		fetches := c.client.PollRecords(ctx, 100)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("Kafka fetch error", "partition", partition, "error", err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()

			if err := c.processWithRetry(ctx, rec); err != nil {
				if errors.Is(err, context.Canceled) {
					c.client.AllowRebalance()
					return nil
				}
				msg := "Message dropped after max retries"
				if errors.Is(err, ErrPoisonRecord) {
					msg = "Poison record dropped"
				}
				c.logger.Error(msg,
					"error", err,
					"key", string(rec.Key),
					"partition", rec.Partition,
					"offset", rec.Offset,
				)
				// Committed anyway so a permanently failing record cannot stall the partition.
			}

			if err := c.client.CommitRecords(ctx, rec); err != nil {
				// Redelivery is tolerated downstream.
				c.logger.Error("Failed to commit offset", "error", err, "offset", rec.Offset)
			}
		}

		c.client.AllowRebalance()
	}
}

// processWithRetry handles the exponential backoff loop
func (c *Consumer) processWithRetry(ctx context.Context, rec *kgo.Record) error {
	attempt := 0
	backoff := c.cfg.InitialBackoff

	recCtx := extractHeaders(ctx, rec.Headers)
	recCtx = contextx.WithEntryPoint(recCtx, "consumer")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.handler(contextx.WithRetryAttempt(recCtx, attempt), rec.Key, rec.Value)
		if err == nil {
			return nil
		}

		if isPermanent(err) {
			return fmt.Errorf("%w: %w", ErrPoisonRecord, err)
		}

		attempt++

		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}

		c.logger.WarnContext(recCtx, "Transient processing failure, retrying...",
			"attempt", attempt,
			"error", err,
			"next_retry_in", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}
}

// Close leaves the group and releases the client. Safe to call twice.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		if c.client != nil {
			c.client.Close()
		}
	})
	return nil
}
