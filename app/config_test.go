package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HELIX_AUDIT_PUBLISHER", "local")
	t.Setenv("HELIX_AUTH_MODE", "header")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "helix-audit", cfg.Service.Name)
	assert.Equal(t, audit.PublisherLocal, cfg.Audit.Publisher)
	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "platform.audit.events", cfg.Messaging.Topics["AUDIT_EVENTS_RECORDING"])
	assert.Equal(t, 5, cfg.Messaging.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Policy.ReloadInterval)
	assert.False(t, cfg.Cache.Enabled())
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HELIX_AUDIT_PUBLISHER", "sync")
	t.Setenv("HELIX_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("HELIX_KAFKA_TOPICS", "AUDIT_EVENTS_RECORDING:audit.v2")
	t.Setenv("HELIX_JWKS_URL", "https://idp.local/jwks")
	t.Setenv("HELIX_JWT_ISSUER", "https://idp.local")
	t.Setenv("HELIX_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Messaging.Brokers)
	assert.Equal(t, "audit.v2", cfg.Messaging.Topics["AUDIT_EVENTS_RECORDING"])
	assert.Equal(t, AuthJWT, cfg.Service.AuthMode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "broker publisher without brokers",
			env:  map[string]string{"HELIX_AUDIT_PUBLISHER": "async", "HELIX_AUTH_MODE": "header"},
			want: "KAFKA_BROKERS",
		},
		{
			name: "jwt without jwks",
			env:  map[string]string{"HELIX_AUDIT_PUBLISHER": "local"},
			want: "JWKS_URL",
		},
		{
			name: "unknown publisher",
			env:  map[string]string{"HELIX_AUDIT_PUBLISHER": "carrier-pigeon"},
			want: "audit",
		},
		{
			name: "unknown log level",
			env:  map[string]string{"HELIX_LOG_LEVEL": "loud"},
			want: "log",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
