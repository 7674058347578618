package middlewares

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/oauthpopup/internal/http/errors"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

// RateLimitResult contiene el resultado de una consulta al rate limiter.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	WindowTTL  time.Duration
}

// RateLimiter define la interfaz mínima para un rate limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// clientIP extrae la IP del cliente. X-Forwarded-For sólo cuenta con
// trustForwarded; sin proxy de confianza cualquier cliente lo puede rotar.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			parts := strings.Split(xf, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey genera una clave basada en IP y path.
func IPPathRateKey(trustForwarded bool) RateKeyFunc {
	return func(r *http.Request) string {
		return clientIP(r, trustForwarded) + "|" + r.URL.Path
	}
}

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter RateLimiter
	// KeyFunc por defecto es IPPathRateKey(TrustForwardedHeaders).
	KeyFunc RateKeyFunc
	// TrustForwardedHeaders toma la IP de X-Forwarded-For (detrás de proxy).
	TrustForwardedHeaders bool
}

// WithRateLimit crea un middleware de rate limiting. Sin limiter es un no-op.
// Un error del limiter deja pasar el request (fail open).
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPPathRateKey(cfg.TrustForwardedHeaders)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Op("rate_limit"),
					logger.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if res.WindowTTL > 0 {
				resetAt := time.Now().Add(res.WindowTTL).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int((res.RetryAfter + time.Second - 1) / time.Second)
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
