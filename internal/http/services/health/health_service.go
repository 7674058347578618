// Package health contiene el service para health checks.
package health

import (
	"context"
	"fmt"
	"time"

	dto "github.com/dropDatabas3/oauthpopup/internal/http/dto/health"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

// HealthService define las operaciones de health check.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Deps contiene las dependencias inyectables para el health service.
type Deps struct {
	Version string
	// RateLimiterKind: "" (deshabilitado) | "memory" | "redis"
	RateLimiterKind string
	RedisCheck      func(ctx context.Context) error
	Now             func() time.Time
}

type healthService struct {
	deps Deps
}

// NewHealthService crea un nuevo service de health check.
func NewHealthService(deps Deps) HealthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("health"),
		logger.Op("Check"),
	)

	response := dto.HealthResponse{
		Status:     "ready",
		Components: map[string]dto.HealthStatus{"popup": {Status: "ok"}},
		Version:    s.deps.Version,
		Timestamp:  s.deps.Now().UTC(),
	}

	// Rate limiter (no crítico: el middleware hace fail open)
	switch {
	case s.deps.RateLimiterKind == "":
		response.Components["rate_limiter"] = dto.HealthStatus{Status: "disabled"}
	case s.deps.RedisCheck != nil:
		if err := s.deps.RedisCheck(ctx); err != nil {
			response.Components["rate_limiter"] = dto.HealthStatus{
				Status:  "error",
				Message: fmt.Sprintf("redis unavailable: %v", err),
			}
			response.Status = "degraded"
			log.Warn("redis unavailable", logger.Err(err))
		} else {
			response.Components["rate_limiter"] = dto.HealthStatus{Status: "ok", Message: "redis"}
		}
	default:
		response.Components["rate_limiter"] = dto.HealthStatus{Status: "ok", Message: s.deps.RateLimiterKind}
	}

	return response
}
