package audit

//go:generate mockgen -source=publisher.go -destination=mocks/mocks.go -package=mocks Publisher

import "context"

// Publisher places an accepted event onto a physical topic. Implementations
// return once the event is accepted for delivery, not once it is persisted.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
}

// NoopPublisher is for dev/testing.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	return nil
}
