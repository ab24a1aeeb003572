package feature

import (
	"context"
	"os"
	"strings"
	"sync"
)

// LegacyBaseRouting reads base-typed stored entities as state changes instead
// of rejecting them.
const LegacyBaseRouting = "audit-legacy-base-routing"

// Provider defines how we fetch flags.
type Provider interface {
	IsEnabled(ctx context.Context, key string) bool
}

var (
	mu       sync.RWMutex
	provider Provider
)

// Init installs the process wide provider. A nil provider selects EnvProvider.
func Init(p Provider) {
	if p == nil {
		p = EnvProvider{}
	}
	mu.Lock()
	provider = p
	mu.Unlock()
}

// IsEnabled checks the feature flag. Flags are off until Init is called.
func IsEnabled(ctx context.Context, key string) bool {
	mu.RLock()
	p := provider
	mu.RUnlock()
	if p == nil {
		return false
	}
	return p.IsEnabled(ctx, key)
}

// EnvProvider reads FEATURE_<KEY>=true, with dashes mapped to underscores.
type EnvProvider struct{}

func (EnvProvider) IsEnabled(_ context.Context, key string) bool {
	val := os.Getenv(EnvKey(key))
	return strings.EqualFold(val, "true") || val == "1"
}

func EnvKey(key string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Static is a fixed flag set.
type Static map[string]bool

func (s Static) IsEnabled(_ context.Context, key string) bool { return s[key] }
