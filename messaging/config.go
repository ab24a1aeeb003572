package messaging

import "time"

type Config struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`

	// Topics maps logical channel names onto physical topics,
	// e.g. "AUDIT_EVENTS_RECORDING:platform.audit.events".
	Topics      map[string]string `envconfig:"KAFKA_TOPICS" default:"AUDIT_EVENTS_RECORDING:platform.audit.events"`
	TopicPrefix string            `envconfig:"KAFKA_TOPIC_PREFIX" default:""`

	GroupID        string        `envconfig:"KAFKA_GROUP_ID" default:"audit-service"`
	MaxRetries     int           `envconfig:"KAFKA_MAX_RETRIES" default:"5"`
	InitialBackoff time.Duration `envconfig:"KAFKA_INITIAL_BACKOFF" default:"100ms"`
	MaxBackoff     time.Duration `envconfig:"KAFKA_MAX_BACKOFF" default:"30s"`

	EnsureTopics      bool  `envconfig:"KAFKA_ENSURE_TOPICS" default:"true"`
	TopicPartitions   int32 `envconfig:"KAFKA_TOPIC_PARTITIONS" default:"3"`
	TopicReplications int16 `envconfig:"KAFKA_TOPIC_REPLICATION" default:"1"`
}
