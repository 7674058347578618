package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/popup"
	mw "github.com/dropDatabas3/oauthpopup/internal/http/middlewares"
)

// PopupRouterDeps contiene las dependencias para las rutas del popup.
type PopupRouterDeps struct {
	Path        string
	Controller  *ctrl.CompleteController
	RateLimiter mw.RateLimiter
	// TrustForwardedHeaders habilita X-Forwarded-* para rate limit y HSTS.
	TrustForwardedHeaders bool
}

// RegisterPopupRoutes registra GET|HEAD {Path}/complete. El resto de los
// métodos los rechaza el controller con 405.
func RegisterPopupRoutes(r chi.Router, deps PopupRouterDeps) {
	path := "/" + strings.Trim(deps.Path, "/")
	if path == "/" {
		path = ""
	}

	r.Handle(path+"/complete", popupHandler(deps, http.HandlerFunc(deps.Controller.Complete)))
}

func popupHandler(deps PopupRouterDeps, handler http.Handler) http.Handler {
	return mw.Chain(handler,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(deps.TrustForwardedHeaders),
		mw.WithNoStore(),
		mw.WithRateLimit(mw.RateLimitConfig{
			Limiter:               deps.RateLimiter,
			TrustForwardedHeaders: deps.TrustForwardedHeaders,
		}),
	)
}
