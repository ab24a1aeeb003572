package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Runnable is a long-running consumer loop.
type Runnable interface {
	Start(ctx context.Context) error
	Close() error
}

// ConsumerManager handles the lifecycle of multiple Kafka consumers.
type ConsumerManager struct {
	logger    *slog.Logger
	consumers []Runnable
	wg        sync.WaitGroup
}

func NewConsumerManager(logger *slog.Logger) *ConsumerManager {
	return &ConsumerManager{
		logger: logger.With("component", "consumer_manager"),
	}
}

// Register adds a consumer to be managed.
func (m *ConsumerManager) Register(c Runnable) {
	m.consumers = append(m.consumers, c)
}

func (m *ConsumerManager) Len() int { return len(m.consumers) }

// Start runs every registered consumer in its own goroutine and returns.
func (m *ConsumerManager) Start(ctx context.Context) {
	m.logger.Info("Starting consumers", "count", len(m.consumers))
	for _, c := range m.consumers {
		m.wg.Add(1)
		go func(consumer Runnable) {
			defer m.wg.Done()
			if err := consumer.Start(ctx); err != nil {
				m.logger.Error("Consumer stopped with error", "error", err)
			}
		}(c)
	}
}

// Close stops all consumers, waits for in-flight records and reports every
// close failure.
func (m *ConsumerManager) Close() error {
	if len(m.consumers) == 0 {
		return nil
	}
	m.logger.Info("Stopping all consumers...")

	var errs []error
	for _, c := range m.consumers {
		// Closing the client makes Start return.
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()

	if err := errors.Join(errs...); err != nil {
		m.logger.Error("Consumers stopped with close failures", "error", err)
		return err
	}
	m.logger.Info("All consumers stopped gracefully")
	return nil
}
