package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/health"
	mw "github.com/dropDatabas3/oauthpopup/internal/http/middlewares"
)

// HealthRouterDeps contiene las dependencias para el router de health.
type HealthRouterDeps struct {
	Controller *ctrl.HealthController
}

// RegisterHealthRoutes registra /healthz y /readyz. Públicos, sin rate limit.
func RegisterHealthRoutes(r chi.Router, deps HealthRouterDeps) {
	c := deps.Controller

	r.Handle("/healthz", healthBaseHandler(http.HandlerFunc(c.Healthz)))
	r.Handle("/readyz", healthBaseHandler(http.HandlerFunc(c.Readyz)))
}

// healthBaseHandler: solo infra básica, sin logging (muy frecuentes).
func healthBaseHandler(handler http.Handler) http.Handler {
	return mw.Chain(handler,
		mw.WithRecover(),
		mw.WithRequestID(),
	)
}
