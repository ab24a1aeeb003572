package messaging

import (
	"maps"
	"slices"
	"strings"
)

// TopicRegistry resolves logical channel names to physical topic names.
type TopicRegistry struct {
	topics map[string]string
}

// NewTopicRegistry builds a registry from logical->physical pairs. A non-empty
// prefix is prepended to every physical name.
func NewTopicRegistry(topics map[string]string, prefix string) *TopicRegistry {
	resolved := make(map[string]string, len(topics))
	for logical, physical := range topics {
		logical = strings.TrimSpace(logical)
		physical = strings.TrimSpace(physical)
		if logical == "" || physical == "" {
			continue
		}
		resolved[logical] = prefix + physical
	}
	return &TopicRegistry{topics: resolved}
}

// Resolve returns the physical topic for a logical name.
func (r *TopicRegistry) Resolve(logical string) (string, bool) {
	topic, ok := r.topics[logical]
	return topic, ok
}

// Physical lists every configured physical topic, sorted.
func (r *TopicRegistry) Physical() []string {
	return slices.Sorted(maps.Values(r.topics))
}
