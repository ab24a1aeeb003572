package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Config is optional: an empty Addr disables rate limiting and idempotency.
type Config struct {
	Addr        string        `envconfig:"REDIS_ADDR"`
	Password    string        `envconfig:"REDIS_PASSWORD" default:""`
	DB          int           `envconfig:"REDIS_DB" default:"0"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"3s"`
}

func (c Config) Enabled() bool { return c.Addr != "" }

// NewRedis initializes a traced Redis client and performs a fail-fast ping.
func NewRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	rdb.AddHook(newRedisTracingHook(cfg.DB))

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

// redisTracingHook emits a client span per command when the caller is traced.
// Only the command name and key are recorded, never values: idempotency
// entries hold response bodies.
type redisTracingHook struct {
	tracer trace.Tracer
	db     int
}

func newRedisTracingHook(db int) *redisTracingHook {
	return &redisTracingHook{
		tracer: otel.Tracer("helix-audit/cache/redis"),
		db:     db,
	}
}

// Ping adapts the client to health.Pinger.
func Ping(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func (h *redisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmd)
		}

		ctx, span := h.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(h.attrs(cmd.Name(), statement(cmd))...),
		)
		defer span.End()

		err := next(ctx, cmd)
		recordErr(span, err)
		return err
	}
}

func (h *redisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmds)
		}

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}

		attrs := append(h.attrs("pipeline", strings.Join(names, " ")),
			attribute.Int("db.redis.pipeline_length", len(cmds)))
		ctx, span := h.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(ctx, cmds)
		recordErr(span, err)
		return err
	}
}

func (h *redisTracingHook) attrs(op, stmt string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", h.db),
		attribute.String("db.operation", op),
		attribute.String("db.statement", stmt),
	}
}

// statement is "<command> <key>"; EVALSHA and EVAL name their first key.
func statement(cmd redis.Cmder) string {
	args := cmd.Args()
	keyPos := 1
	switch strings.ToLower(cmd.Name()) {
	case "eval", "evalsha", "eval_ro", "evalsha_ro":
		keyPos = 3
	}
	if len(args) <= keyPos {
		return cmd.Name()
	}
	return fmt.Sprintf("%s %v", cmd.Name(), args[keyPos])
}

func recordErr(span trace.Span, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
