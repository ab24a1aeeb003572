package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/crypto"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/messaging"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/middleware"
)

// EnvPrefix namespaces every variable, e.g. HELIX_DB_DSN.
const EnvPrefix = "HELIX"

// AuthMode selects how callers are identified.
type AuthMode string

const (
	AuthJWT    AuthMode = "jwt"
	AuthHeader AuthMode = "header"
)

type ServiceConfig struct {
	Name     string   `envconfig:"SERVICE_NAME" default:"helix-audit" validate:"required"`
	AuthMode AuthMode `envconfig:"AUTH_MODE" default:"jwt" validate:"oneof=jwt header"`
}

type PolicyConfig struct {
	// File is optional; without it the built-in role document is used.
	File           string        `envconfig:"POLICY_FILE"`
	ReloadInterval time.Duration `envconfig:"POLICY_RELOAD_INTERVAL" default:"30s" validate:"gt=0"`
}

// Config is the full service configuration. Each section is processed on its
// own so that sub-package variable names stay flat.
type Config struct {
	Service       ServiceConfig
	Log           log.Config
	Server        server.Config
	Database      database.Config
	Cache         cache.Config
	Messaging     messaging.Config
	Audit         audit.Config
	Policy        PolicyConfig
	RateLimit     middleware.RateLimitConfig
	Idempotency   middleware.IdempotencyConfig
	JWKS          crypto.JWKSConfig
	TrustedHeader middleware.TrustedHeaderConfig
}

// Loader standardizes how we load configuration.
// It combines envconfig (for parsing) and validator/v10 (for enforcement).
type Loader struct {
	validate *validator.Validate
}

func NewConfigLoader() *Loader {
	return &Loader{
		validate: validator.New(),
	}
}

// Load reads env vars into the provided struct and validates it.
func (l *Loader) Load(ctx context.Context, dst any, prefix string) error {
	if err := envconfig.Process(prefix, dst); err != nil {
		return fmt.Errorf("config: failed to process env vars: %w", err)
	}

	if err := l.validate.StructCtx(ctx, dst); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	return nil
}

// LoadConfig builds Config from the environment. If this fails, the
// application should not start.
func LoadConfig(ctx context.Context) (*Config, error) {
	l := NewConfigLoader()
	cfg := &Config{}

	sections := []struct {
		name string
		dst  any
	}{
		{"service", &cfg.Service},
		{"log", &cfg.Log},
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"cache", &cfg.Cache},
		{"messaging", &cfg.Messaging},
		{"audit", &cfg.Audit},
		{"policy", &cfg.Policy},
		{"rate limit", &cfg.RateLimit},
		{"idempotency", &cfg.Idempotency},
		{"jwks", &cfg.JWKS},
		{"trusted header", &cfg.TrustedHeader},
	}
	for _, s := range sections {
		if err := l.Load(ctx, s.dst, EnvPrefix); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// check enforces rules that span sections.
func (c *Config) check() error {
	if c.Audit.Publisher != audit.PublisherLocal && len(c.Messaging.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required for publisher %q", c.Audit.Publisher)
	}
	if c.Service.AuthMode == AuthJWT && (c.JWKS.URL == "" || c.JWKS.Issuer == "") {
		return errors.New("JWKS_URL and JWT_ISSUER are required when AUTH_MODE is jwt")
	}
	return nil
}
