package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunnerStopsOnFailure(t *testing.T) {
	r := NewRunner(discard())
	var order []string
	r.OnShutdown("db", func(context.Context) error { order = append(order, "db"); return nil })
	r.OnShutdown("broker", func(context.Context) error { order = append(order, "broker"); return errors.New("ignored") })

	boom := errors.New("listener failed")
	blockedReturned := false

	err := r.Run(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			blockedReturned = true
			return nil
		},
		func(context.Context) error { return boom },
	)

	require.ErrorIs(t, err, boom)
	assert.True(t, blockedReturned)
	assert.Equal(t, []string{"broker", "db"}, order)
}

func TestRunnerParentCancel(t *testing.T) {
	r := NewRunner(discard())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	closed := false
	r.OnShutdown("consumers", func(context.Context) error { closed = true; return nil })

	err := r.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
	assert.True(t, closed)
}

func TestRunnerOwnDeadlineIsFailure(t *testing.T) {
	r := NewRunner(discard())

	err := r.Run(context.Background(), func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
