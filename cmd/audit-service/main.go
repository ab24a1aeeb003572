package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/godamri/helix-audit/access"
	"github.com/godamri/helix-audit/app"
	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/feature"
	"github.com/godamri/helix-audit/http/handler"
	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/mapper"
	"github.com/godamri/helix-audit/messaging"
	"github.com/godamri/helix-audit/processor"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/health"
	"github.com/godamri/helix-audit/server/middleware"
	"github.com/godamri/helix-audit/service"
)

const healthSyncInterval = 10 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(cfg.Log, cfg.Service.Name)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := app.NewRunner(logger)
	runner.ShutdownTimeout = cfg.Server.ShutdownTimeout

	feature.Init(feature.EnvProvider{})
	legacy := feature.IsEnabled(ctx, feature.LegacyBaseRouting)
	if legacy {
		logger.Warn("Legacy base entity routing enabled")
	}
	m := mapper.New(mapper.WithLegacyBaseRouting(legacy))

	deps := make(map[string]health.Pinger)

	st, err := newStore(ctx, cfg, logger, runner, deps)
	if err != nil {
		return err
	}

	topics := messaging.NewTopicRegistry(cfg.Messaging.Topics, cfg.Messaging.TopicPrefix)
	recording, hasRecording := topics.Resolve(audit.RecordingTopic)
	if !hasRecording {
		logger.Warn("Recording topic is not configured, publishing will fail", "topic", audit.RecordingTopic)
	}

	useBroker := cfg.Audit.Publisher != audit.PublisherLocal
	if useBroker && cfg.Messaging.EnsureTopics {
		if err := messaging.EnsureTopics(ctx, cfg.Messaging, topics.Physical(), logger); err != nil {
			return err
		}
	}

	// The in-process publisher delivers to the processor, which needs the
	// service, which needs the publisher.
	var proc *processor.AuditEventProcessor
	deliver := func(ctx context.Context, key, payload []byte) error {
		return proc.Handle(ctx, key, payload)
	}

	publisher, err := newPublisher(cfg, logger, deliver, runner, deps)
	if err != nil {
		return err
	}

	svc, err := service.NewEventService(st, publisher, topics, logger)
	if err != nil {
		return err
	}
	proc = processor.NewAuditEventProcessor(m, svc, logger)

	consumers := messaging.NewConsumerManager(logger)
	if useBroker && hasRecording {
		c, err := messaging.NewConsumer(messaging.ConsumerConfig{
			Brokers:        cfg.Messaging.Brokers,
			GroupID:        cfg.Messaging.GroupID,
			Topic:          recording,
			MaxRetries:     cfg.Messaging.MaxRetries,
			InitialBackoff: cfg.Messaging.InitialBackoff,
			MaxBackoff:     cfg.Messaging.MaxBackoff,
		}, logger, proc.Handle)
		if err != nil {
			return err
		}
		consumers.Register(c)
	}
	runner.OnShutdown("consumers", func(context.Context) error { return consumers.Close() })

	engine, err := newPolicyEngine(cfg.Policy, logger)
	if err != nil {
		return err
	}

	auth, err := newAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled() {
		rdb, err = cache.NewRedis(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		deps["redis"] = health.PingFunc(cache.Ping(rdb))
		runner.OnShutdown("redis", closer(rdb.Close))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checker := health.NewChecker(deps, logger)

	r := chi.NewRouter()
	r.Use(
		middleware.PanicRecovery(logger),
		middleware.TraceIDMiddleware,
		middleware.SecurityHeaders,
		middleware.OTelMiddleware(cfg.Service.Name, r),
		middleware.NewHTTPMetrics(reg).Middleware,
		middleware.LoggerMiddleware(logger),
		auth.HTTPMiddleware,
	)
	if rdb != nil {
		r.Use(
			middleware.RateLimitMiddleware(rdb, cfg.RateLimit),
			middleware.IdempotencyMiddleware(rdb, cfg.Idempotency, logger),
		)
	}
	r.NotFound(response.NotFound)
	r.MethodNotAllowed(response.MethodNotAllowed)

	checker.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler.New(svc, m, access.NewScoper(engine, logger), cfg.Server.PublicBaseURL, logger).Register(r)

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.GRPCRecoveryInterceptor(logger),
		auth.GRPCUnaryInterceptor,
	}
	if rdb != nil {
		interceptors = append(interceptors, middleware.GRPCRateLimitInterceptor(rdb, cfg.RateLimit))
	}
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	healthSrv := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	srv := server.New(cfg.Server, logger, r, grpcSrv)

	tasks := []func(context.Context) error{
		srv.Start,
		func(ctx context.Context) error {
			consumers.Start(ctx)
			<-ctx.Done()
			return nil
		},
		func(ctx context.Context) error {
			checker.SyncGRPC(ctx, healthSrv, healthSyncInterval)
			return nil
		},
	}
	if cfg.Policy.File != "" {
		tasks = append(tasks, func(ctx context.Context) error {
			engine.Watch(ctx, cfg.Policy.File, cfg.Policy.ReloadInterval)
			return nil
		})
	}

	return runner.Run(ctx, tasks...)
}
