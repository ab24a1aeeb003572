package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is a dependency the service cannot serve without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker handles the health check endpoints.
type Checker struct {
	deps    map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker takes the named dependencies checked by readiness.
func NewChecker(deps map[string]Pinger, logger *slog.Logger) *Checker {
	return &Checker{
		deps:    deps,
		timeout: 500 * time.Millisecond,
		logger:  logger.With("component", "health"),
	}
}

func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/health", c.HandleHealth) // Liveness
	r.Get("/ready", c.HandleReadiness)
}

// HandleHealth returns 200 while the process is running.
func (c *Checker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Check pings every dependency within the readiness budget. A slow dependency
// counts as down.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := make(map[string]string, len(c.deps)+1)
	healthy := true
	for _, name := range slices.Sorted(maps.Keys(c.deps)) {
		if err := c.deps[name].Ping(ctx); err != nil {
			c.logger.ErrorContext(ctx, "readiness check failed", "dependency", name, "error", err)
			result[name] = "DOWN"
			healthy = false
			continue
		}
		result[name] = "UP"
	}

	result["status"] = "UP"
	if !healthy {
		result["status"] = "DOWN"
	}
	return result, healthy
}

func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	result, healthy := c.Check(r.Context())

	statusCode := http.StatusOK
	if !healthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		c.logger.Error("failed to write health response", "error", err)
	}
}

// SyncGRPC mirrors readiness into the gRPC health service until ctx is done.
func (c *Checker) SyncGRPC(ctx context.Context, srv *grpchealth.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_SERVING
		if _, ok := c.Check(ctx); !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
		}
	}
}
