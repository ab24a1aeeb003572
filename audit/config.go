package audit

// PublisherKind selects the egress implementation.
type PublisherKind string

const (
	// PublisherSync waits for the broker to acknowledge each event.
	PublisherSync PublisherKind = "sync"
	// PublisherAsync hands events to a batching producer and returns.
	PublisherAsync PublisherKind = "async"
	// PublisherLocal delivers events in-process, without a broker.
	PublisherLocal PublisherKind = "local"
)

type Config struct {
	Publisher PublisherKind `envconfig:"AUDIT_PUBLISHER" default:"sync" validate:"oneof=sync async local"`

	// BufferSize is the size of the in-process channel.
	BufferSize int `envconfig:"AUDIT_BUFFER_SIZE" default:"1024"`

	// BlockOnFull makes Publish wait for room in a full in-process channel
	// instead of dropping the event.
	BlockOnFull bool `envconfig:"AUDIT_BLOCK_ON_FULL" default:"true"`
}
