package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/godamri/helix-audit/pkg/contextx"
)

func newTestConsumer(maxRetries int, handler HandlerFunc) *Consumer {
	return &Consumer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg: withBackoffDefaults(ConsumerConfig{
			MaxRetries:     maxRetries,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		}),
		handler: handler,
	}
}

func TestProcessWithRetry(t *testing.T) {
	rec := &kgo.Record{Key: []byte("k"), Value: []byte(`{}`)}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		var calls atomic.Int32
		var attempts []int
		c := newTestConsumer(5, func(ctx context.Context, key, payload []byte) error {
			attempts = append(attempts, contextx.GetRetryAttempt(ctx))
			assert.Equal(t, "consumer", contextx.GetEntryPoint(ctx))
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, c.processWithRetry(context.Background(), rec))
		assert.EqualValues(t, 3, calls.Load())
		assert.Equal(t, []int{0, 1, 2}, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestConsumer(3, func(ctx context.Context, key, payload []byte) error {
			calls.Add(1)
			return errors.New("poison")
		})

		err := c.processWithRetry(context.Background(), rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("drops permanent failures without retry", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestConsumer(5, func(ctx context.Context, key, payload []byte) error {
			calls.Add(1)
			return permanentErr{errors.New("unknown eventData type")}
		})

		err := c.processWithRetry(context.Background(), rec)
		assert.ErrorIs(t, err, ErrPoisonRecord)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c := newTestConsumer(0, func(ctx context.Context, key, payload []byte) error {
			cancel()
			return errors.New("fail")
		})

		err := c.processWithRetry(ctx, rec)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type permanentErr struct{ error }

func (permanentErr) Permanent() bool { return true }

func TestBackoffDefaults(t *testing.T) {
	cfg := withBackoffDefaults(ConsumerConfig{})
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
}

type fakeRunnable struct {
	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
}

func (f *fakeRunnable) Start(ctx context.Context) error {
	f.started.Store(true)
	<-f.done
	return nil
}

func (f *fakeRunnable) Close() error {
	f.closed.Store(true)
	close(f.done)
	return nil
}

func TestConsumerManager(t *testing.T) {
	m := NewConsumerManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := &fakeRunnable{done: make(chan struct{})}
	b := &fakeRunnable{done: make(chan struct{})}
	m.Register(a)
	m.Register(b)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return a.started.Load() && b.started.Load() }, time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
}
