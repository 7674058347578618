// Package health contiene el controller para health checks.
package health

import (
	"encoding/json"
	"net/http"

	httperrors "github.com/dropDatabas3/oauthpopup/internal/http/errors"
	svc "github.com/dropDatabas3/oauthpopup/internal/http/services/health"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

// HealthController maneja las rutas de health check.
type HealthController struct {
	service svc.HealthService
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Readyz maneja GET /readyz. Un estado "degraded" sigue siendo 200.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	response := c.service.Check(ctx)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if response.Version != "" {
		w.Header().Set("X-Service-Version", response.Version)
	}

	log.Debug("health check completed",
		logger.String("status", response.Status),
		logger.Int("components_count", len(response.Components)),
	)

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// Healthz es el liveness probe: solo confirma que el proceso responde.
func (c *HealthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
