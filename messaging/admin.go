package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// EnsureTopics creates any missing topics. Existing topics are left untouched.
func EnsureTopics(ctx context.Context, cfg Config, topics []string, logger *slog.Logger) error {
	if len(topics) == 0 {
		return nil
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return fmt.Errorf("kafka: admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, cfg.TopicPartitions, cfg.TopicReplications, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}

	for topic, r := range resp {
		switch {
		case r.Err == nil:
			logger.Info("Topic created", "topic", topic, "partitions", cfg.TopicPartitions)
		case errors.Is(r.Err, kerr.TopicAlreadyExists):
			logger.Debug("Topic already exists", "topic", topic)
		default:
			return fmt.Errorf("kafka: create topic %s: %w", topic, r.Err)
		}
	}
	return nil
}
