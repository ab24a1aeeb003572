package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner encapsulates the startup logic: signal handling, the task group and
// ordered cleanup.
type Runner struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{Logger: logger, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers cleanup. Closers run in reverse registration order
// once every task has returned.
func (r *Runner) OnShutdown(name string, fn func(ctx context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Run executes tasks until SIGTERM/SIGINT or the first task failure, then
// runs the closers. A task returning nil does not stop the others.
func (r *Runner) Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.Logger.Info("Service starting...")

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}

	err := g.Wait()
	// A task returning the parent's own cancellation cause is a clean stop.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.Logger.Error("Service stopped with error", "error", err)
	} else {
		err = nil
		r.Logger.Info("Shutdown signal received. Cleaning up...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()

	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if cerr := c.fn(shutdownCtx); cerr != nil {
			r.Logger.Error("Cleanup failed", "resource", c.name, "error", cerr)
		}
	}

	r.Logger.Info("Service shutdown complete.")
	return err
}
