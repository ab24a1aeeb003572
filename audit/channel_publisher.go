package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DeliveryFunc receives encoded events from the in-process channel.
type DeliveryFunc func(ctx context.Context, key, payload []byte) error

// ChannelPublisher is an in-process broker: published events are buffered and
// handed to a single worker, one delivery at a time.
type ChannelPublisher struct {
	events  chan envelope
	deliver DeliveryFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool

	blockOnFull bool

	dropCount   uint64
	lastLogTime time.Time
	dropMu      sync.Mutex
}

var (
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("audit: channel publisher closed")
	// ErrPublisherFull is returned when the buffer is full and the event was
	// dropped instead of queued.
	ErrPublisherFull = errors.New("audit: channel publisher full")
)

type envelope struct {
	topic   string
	key     []byte
	payload []byte
}

func NewChannelPublisher(cfg Config, deliver DeliveryFunc, logger *slog.Logger) *ChannelPublisher {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	p := &ChannelPublisher{
		events:      make(chan envelope, bufferSize),
		deliver:     deliver,
		logger:      logger.With("component", "channel_publisher"),
		blockOnFull: cfg.BlockOnFull,
		lastLogTime: time.Now(),
	}

	p.wg.Add(1)
	go p.worker()

	return p
}

func (p *ChannelPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal failed: %w", err)
	}
	env := envelope{topic: topic, key: []byte(event.Metadata.ID.String()), payload: payload}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if p.blockOnFull {
		select {
		case p.events <- env:
			return nil
		case <-ctx.Done():
			p.handleDrop(topic)
			return ctx.Err()
		}
	}

	select {
	case p.events <- env:
		return nil
	default:
		p.handleDrop(topic)
		return ErrPublisherFull
	}
}

func (p *ChannelPublisher) handleDrop(topic string) {
	currentDrops := atomic.AddUint64(&p.dropCount, 1)

	p.dropMu.Lock()
	defer p.dropMu.Unlock()

	if time.Since(p.lastLogTime) >= 5*time.Second || currentDrops == 1 {
		p.logger.Warn("audit channel full, event dropped",
			"strategy", "drop_on_full",
			"total_dropped", currentDrops,
			"topic", topic,
		)
		p.lastLogTime = time.Now()
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *ChannelPublisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropCount)
}

func (p *ChannelPublisher) worker() {
	defer p.wg.Done()

	for env := range p.events {
		if err := p.deliver(context.Background(), env.key, env.payload); err != nil {
			p.logger.Error("in-process delivery failed", "topic", env.topic, "key", string(env.key), "error", err)
		}
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
