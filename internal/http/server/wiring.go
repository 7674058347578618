// Package server cablea config, limiter, services, controllers y router.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/oauthpopup/internal/config"
	healthctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/health"
	popupctrl "github.com/dropDatabas3/oauthpopup/internal/http/controllers/popup"
	mw "github.com/dropDatabas3/oauthpopup/internal/http/middlewares"
	"github.com/dropDatabas3/oauthpopup/internal/http/router"
	healthsvc "github.com/dropDatabas3/oauthpopup/internal/http/services/health"
	popupsvc "github.com/dropDatabas3/oauthpopup/internal/http/services/popup"
	"github.com/dropDatabas3/oauthpopup/internal/metrics"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
	"github.com/dropDatabas3/oauthpopup/internal/rate"
)

// App es el resultado del wiring.
type App struct {
	Handler http.Handler
	// MetricsHandler es no-nil solo si server.metrics_addr está configurado;
	// si no, /metrics cuelga de Handler.
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	Cleanup        func() error
}

// Options permite inyectar dependencias en tests.
type Options struct {
	Version string
	// Limiter reemplaza al construido desde config.
	Limiter rate.Limiter
	// RuntimeMetrics agrega collectors de Go/proceso.
	RuntimeMetrics bool
}

// Build arma el handler HTTP completo a partir de la configuración.
func Build(cfg *config.Config, opts Options) (*App, error) {
	log := logger.L().With(logger.Component("server"), logger.Op("Build"))

	m, err := metrics.New(opts.RuntimeMetrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	cleanup := func() error { return nil }

	// Rate limiter
	var (
		limiter     = opts.Limiter
		limiterKind string
		redisCheck  func(ctx context.Context) error
	)
	if limiter != nil {
		limiterKind = "custom"
	} else if cfg.Rate.Enabled {
		limiterKind = cfg.Rate.Kind
		switch cfg.Rate.Kind {
		case "redis":
			client := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Rate.Redis.Addr,
				Password: cfg.Rate.Redis.Password,
				DB:       cfg.Rate.Redis.DB,
			})
			limiter = rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, cfg.Rate.MaxRequests, cfg.RateWindow())
			redisCheck = func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				defer cancel()
				return client.Ping(ctx).Err()
			}
			cleanup = client.Close
		default:
			limiter = rate.NewMemoryLimiter("", cfg.Rate.MaxRequests, cfg.RateWindow())
		}
	}

	var mwLimiter mw.RateLimiter
	if limiter != nil {
		mwLimiter = limiterAdapter{limiter}
		log.Info("rate limiting enabled",
			logger.String("kind", limiterKind),
			logger.Int("max_requests", cfg.Rate.MaxRequests),
			logger.String("window", cfg.RateWindow().String()),
		)
	}

	// Services
	popupService := popupsvc.NewCompleteService(popupsvc.Deps{
		Config: popupsvc.Config{
			NotifyDelay:        cfg.Popup.NotifyDelay,
			CloseDelay:         cfg.Popup.CloseDelay,
			CloseWithoutOpener: cfg.CloseWithoutOpener(),
		},
		Metrics: m,
	})
	healthService := healthsvc.NewHealthService(healthsvc.Deps{
		Version:         opts.Version,
		RateLimiterKind: limiterKind,
		RedisCheck:      redisCheck,
	})

	// Controllers
	popupController := popupctrl.NewCompleteController(popupService, popupctrl.Options{
		PublicOrigin:          cfg.Popup.PublicOrigin,
		TrustForwardedHeaders: cfg.Popup.TrustForwardedHeaders,
		Brand:                 cfg.Popup.Brand,
	})
	healthController := healthctrl.NewHealthController(healthService)

	separateMetrics := cfg.Server.MetricsAddr != ""
	handler := router.New(router.Deps{
		PopupPath:        cfg.Server.PopupPath,
		PopupController:  popupController,
		HealthController: healthController,
		Metrics:          m,
		ServeMetrics:     !separateMetrics,
		RateLimiter:      mwLimiter,

		TrustForwardedHeaders: cfg.Popup.TrustForwardedHeaders,
	})

	app := &App{
		Handler: handler,
		Metrics: m,
		Cleanup: cleanup,
	}
	if separateMetrics {
		app.MetricsHandler = m.Handler()
	}
	return app, nil
}

// limiterAdapter adapta rate.Limiter a la interfaz del middleware.
type limiterAdapter struct {
	l rate.Limiter
}

func (a limiterAdapter) Allow(ctx context.Context, key string) (mw.RateLimitResult, error) {
	res, err := a.l.Allow(ctx, key)
	if err != nil {
		return mw.RateLimitResult{}, err
	}
	return mw.RateLimitResult{
		Allowed:    res.Allowed,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
		WindowTTL:  res.WindowTTL,
	}, nil
}
