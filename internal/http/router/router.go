// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/health"
	popupctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/popup"
	httperrors "github.com/dropDatabas3/oauthpopup/internal/http/errors"
	mw "github.com/dropDatabas3/oauthpopup/internal/http/middlewares"
	"github.com/dropDatabas3/oauthpopup/internal/metrics"
)

// Deps contiene todas las dependencias del router.
type Deps struct {
	// PopupPath es el prefijo del popup, ej "/oauth/popup".
	PopupPath string

	PopupController  *popupctrl.CompleteController
	HealthController *healthctrl.HealthController

	Metrics *metrics.Metrics
	// ServeMetrics expone /metrics en este router (sin listener dedicado).
	ServeMetrics bool

	RateLimiter mw.RateLimiter // Opcional
	// TrustForwardedHeaders: el servicio corre detrás de un proxy de confianza.
	TrustForwardedHeaders bool
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(deps.Metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if deps.HealthController != nil {
		RegisterHealthRoutes(r, HealthRouterDeps{Controller: deps.HealthController})
	}
	if deps.PopupController != nil {
		RegisterPopupRoutes(r, PopupRouterDeps{
			Path:                  deps.PopupPath,
			Controller:            deps.PopupController,
			RateLimiter:           deps.RateLimiter,
			TrustForwardedHeaders: deps.TrustForwardedHeaders,
		})
	}
	if deps.ServeMetrics && deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	return r
}
