package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/http/response"
	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	processingMarker = "PROCESSING"
	processingTTL    = 30 * time.Second
)

type IdempotencyConfig struct {
	HeaderKey string        `envconfig:"IDEMPOTENCY_HEADER" default:"Idempotency-Key"`
	Expiry    time.Duration `envconfig:"IDEMPOTENCY_EXPIRY" default:"24h"`
}

// StoredResponse is the cached outcome of a completed request.
type StoredResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

type responseCapturer struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *responseCapturer) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCapturer) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key on unsafe methods. Keys are scoped to the principal.
func IdempotencyMiddleware(rdb redis.Cmdable, cfg IdempotencyConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "idempotency")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(cfg.HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			principalID := contextx.GetAuthPrincipalID(r.Context())
			if principalID == "" {
				principalID = "anon_ip:" + getRealIP(r)
			}

			redisKey := "idempotency:" + principalID + ":" + r.URL.Path + ":" + key
			ctx := r.Context()

			acquired, err := rdb.SetNX(ctx, redisKey, processingMarker, processingTTL).Result()
			if err != nil {
				logger.ErrorContext(ctx, "idempotency: redis error", "error", err)
				response.ErrorJSON(w, r, response.ErrServiceUnavail, "Idempotency store unavailable.")
				return
			}

			if !acquired {
				val, err := rdb.Get(ctx, redisKey).Result()
				if errors.Is(err, redis.Nil) {
					next.ServeHTTP(w, r)
					return
				}
				if err != nil {
					logger.ErrorContext(ctx, "idempotency: redis error", "error", err)
					response.ErrorJSON(w, r, response.ErrServiceUnavail, "Idempotency store unavailable.")
					return
				}

				if val == processingMarker {
					response.ErrorJSON(w, r, response.ErrConflict, "Request is currently being processed.")
					return
				}

				var stored StoredResponse
				if jsonErr := json.Unmarshal([]byte(val), &stored); jsonErr == nil {
					logger.InfoContext(ctx, "Idempotency hit", "key", key, "user", principalID)
					for k, v := range stored.Headers {
						for _, hv := range v {
							w.Header().Add(k, hv)
						}
					}
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(stored.Status)
					_, _ = w.Write(stored.Body)
					return
				}

				logger.WarnContext(ctx, "Idempotency cache corrupted, reprocessing", "key", redisKey)
			}

			capturer := &responseCapturer{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capturer, r)

			if capturer.statusCode >= http.StatusInternalServerError {
				// Server failures may be retried with the same key.
				rdb.Del(ctx, redisKey)
				return
			}

			data, err := json.Marshal(StoredResponse{
				Status:  capturer.statusCode,
				Headers: capturer.Header().Clone(),
				Body:    capturer.body.Bytes(),
			})
			if err != nil {
				rdb.Del(ctx, redisKey)
				return
			}
			rdb.Set(ctx, redisKey, data, cfg.Expiry)
		})
	}
}
