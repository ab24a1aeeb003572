package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godamri/helix-audit/app"
	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/crypto"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/messaging"
	"github.com/godamri/helix-audit/policy"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
	"github.com/godamri/helix-audit/store"
)

// publicPaths skip authentication on both transports.
var publicPaths = []string{
	"/health",
	"/ready",
	"/metrics",
	"/grpc.health.v1.Health/Check",
}

func closer(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

// newStore picks postgres when a DSN is configured and the in-memory store
// otherwise.
func newStore(ctx context.Context, cfg *app.Config, logger *slog.Logger, runner *app.Runner, deps map[string]health.Pinger) (store.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("HELIX_DB_DSN is not set, events are kept in memory")
		return store.NewMemory(), nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database, cfg.Service.Name)
	if err != nil {
		return nil, err
	}
	deps["postgres"] = health.PingFunc(db.PingContext)
	runner.OnShutdown("postgres", closer(db.Close))
	return store.NewPostgres(db), nil
}

func newPublisher(cfg *app.Config, logger *slog.Logger, deliver audit.DeliveryFunc, runner *app.Runner, deps map[string]health.Pinger) (audit.Publisher, error) {
	switch cfg.Audit.Publisher {
	case audit.PublisherSync:
		p, err := messaging.NewProducer(cfg.Messaging, logger)
		if err != nil {
			return nil, err
		}
		deps["kafka"] = health.PingFunc(p.Ping)
		runner.OnShutdown("kafka producer", closer(p.Close))
		return p, nil

	case audit.PublisherAsync:
		p, err := audit.NewKafkaPublisher(cfg.Messaging.Brokers, logger)
		if err != nil {
			return nil, err
		}
		runner.OnShutdown("kafka async producer", closer(p.Close))
		return p, nil

	case audit.PublisherLocal:
		p := audit.NewChannelPublisher(cfg.Audit, deliver, logger)
		runner.OnShutdown("channel publisher", closer(p.Close))
		return p, nil
	}
	return nil, fmt.Errorf("unknown publisher %q", cfg.Audit.Publisher)
}

func newPolicyEngine(cfg app.PolicyConfig, logger *slog.Logger) (*policy.Engine, error) {
	doc := policy.DefaultDocument()
	if cfg.File != "" {
		var err error
		if doc, err = policy.LoadFile(cfg.File); err != nil {
			return nil, err
		}
	}
	return policy.NewEngine(doc, logger)
}

func newAuthMiddleware(ctx context.Context, cfg *app.Config, logger *slog.Logger) (*middleware.AuthMiddleware, error) {
	switch cfg.Service.AuthMode {
	case app.AuthHeader:
		s, err := middleware.NewTrustedHeaderStrategy(cfg.TrustedHeader, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewAuthMiddleware(s, publicPaths...), nil
	default:
		verifier, err := crypto.NewJWKSCachingClient(ctx, cfg.JWKS, logger)
		if err != nil {
			return nil, err
		}
		return middleware.NewAuthMiddleware(middleware.NewJWTStrategy(verifier, logger), publicPaths...), nil
	}
}
