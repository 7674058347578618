package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/oauthpopup/internal/config"
	"github.com/dropDatabas3/oauthpopup/internal/http/server"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		configPath = envOr("CONFIG_PATH", "")
		envFile    = ".env"
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// .env es opcional; las variables del sistema siguen valiendo
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "oauthpopup",
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", configPath, "archivo YAML de configuración (env CONFIG_PATH)")
	cmd.Flags().StringVar(&envFile, "env-file", envFile, "archivo .env a cargar si existe")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.L().With(logger.Component("serve"))

	app, err := server.Build(cfg, server.Options{Version: version, RuntimeMetrics: true})
	if err != nil {
		return fmt.Errorf("wiring: %w", err)
	}
	defer func() {
		if err := app.Cleanup(); err != nil {
			log.Warn("cleanup error", logger.Err(err))
		}
	}()

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}}
	if app.MetricsHandler != nil {
		servers = append(servers, &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           app.MetricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info("listening", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	log.Info("oauthpopup ready",
		logger.String("popup", cfg.Server.PopupPath+"/complete"),
		logger.String("env", cfg.App.Env),
	)
	return g.Wait()
}
