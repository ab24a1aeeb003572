package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// luaGCRA implements Generic Cell Rate Algorithm. It returns -1 when the call
// is allowed, otherwise the seconds to wait.
var luaGCRA = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local period = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])

	local emission_interval = period / rate
	local now = redis.call("TIME")
	local now_ts = tonumber(now[1]) + (tonumber(now[2]) / 1000000)

	local tat = redis.call("GET", key)
	if not tat then
		tat = now_ts
	else
		tat = tonumber(tat)
	end
	tat = math.max(now_ts, tat)

	local new_tat = tat + emission_interval
	local allow_at = new_tat - (burst * emission_interval)

	if allow_at <= now_ts then
		redis.call("SET", key, new_tat, "EX", math.ceil(period * 2))
		return -1
	end

	return math.ceil(allow_at - now_ts)
`)

type RateLimitConfig struct {
	Rate   int           `envconfig:"RATE_LIMIT_RATE" default:"100"`
	Period time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"1m"`
	Burst  int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// allow runs one GCRA step for identity. Redis failures allow the call.
func allow(ctx context.Context, rdb redis.Scripter, key string, cfg RateLimitConfig) (bool, int) {
	res, err := luaGCRA.Run(ctx, rdb, []string{key}, cfg.Rate, cfg.Period.Seconds(), cfg.Burst).Int64()
	if err != nil {
		return true, 0
	}
	if res >= 0 {
		return false, int(res)
	}
	return true, 0
}

// identity prefers the authenticated principal over the client address.
func identity(ctx context.Context, fallbackIP string) string {
	if user := contextx.GetAuthPrincipalID(ctx); user != "" {
		return "user:" + user
	}
	return "ip:" + fallbackIP
}

// RateLimitMiddleware uses GCRA for smooth, burst-tolerant rate limiting.
func RateLimitMiddleware(rdb redis.Scripter, cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Rate <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := "rl:http:" + identity(r.Context(), getRealIP(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Rate))

			if ok, retryAfter := allow(r.Context(), rdb, key, cfg); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				response.ErrorJSON(w, r, response.ErrRateLimit, "Rate limit exceeded.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getRealIP trusts X-Forwarded-For and X-Real-Ip as set by the ingress.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xRealIP := r.Header.Get("X-Real-Ip"); xRealIP != "" {
		return xRealIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
