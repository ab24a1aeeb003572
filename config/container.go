package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Container holds a validated config snapshot for concurrent readers.
type Container[T any] struct {
	store    atomic.Pointer[T]
	mu       sync.Mutex // serialises Update
	validate *validator.Validate
	version  atomic.Uint64
}

// NewContainer validates initial and stores it as the first snapshot.
func NewContainer[T any](initial T) (*Container[T], error) {
	c := &Container[T]{validate: validator.New()}
	if err := c.validate.Struct(initial); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	c.store.Store(&initial)
	c.version.Store(1)
	return c, nil
}

// Get returns the current snapshot. Callers must not mutate it.
func (c *Container[T]) Get() *T {
	return c.store.Load()
}

// Version increases by one on every accepted Update.
func (c *Container[T]) Version() uint64 {
	return c.version.Load()
}

// Update swaps in next if it validates. A rejected update leaves the current
// snapshot in place.
func (c *Container[T]) Update(next T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate.Struct(next); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	c.store.Store(&next)
	c.version.Add(1)
	return nil
}
