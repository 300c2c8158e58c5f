package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/middleware"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/routes/dataset"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/routes/health"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/routes/product"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/routes/syncrun"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/startup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops API: health, metrics, runs, products and dataset sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	c := &components{cfg: cfg, logger: logger}
	defer c.Close(context.Background())

	if err := c.setupTracing(ctx); err != nil {
		return err
	}
	if err := c.loadCatalog(); err != nil {
		return err
	}
	if err := c.openStaging(); err != nil {
		return err
	}

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(&startup.Dependency{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			if c.db == nil {
				if err := c.connectPostgres(ctx); err != nil {
					return err
				}
			}
			return c.migrate()
		},
	})
	s.AddDependency(&startup.Dependency{
		Name:      "redis",
		StartFunc: c.connectRedis,
	})
	s.AddDependency(&startup.Dependency{
		Name:     "kafka",
		Requires: []string{"postgres"},
		StartFunc: func(context.Context) error {
			c.openKafka()
			return nil
		},
	})
	if err := s.Start(ctx); err != nil {
		return err
	}

	store := registry.NewPostgresStore(c.db, logger)
	checks := map[string]health.Pinger{"postgres": store, "redis": nil}
	if c.redis != nil {
		checks["redis"] = c.redis
	}
	checker := health.NewChecker(cfg.AppVersion, checks)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.HTTPAllowOrigins,
		AllowMethods: cfg.HTTPAllowMethods,
	}))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	product.NewHandler(store).Register(api.Group("/products"))
	syncrun.NewHandler(store).Register(api.Group("/runs"))
	dataset.NewHandler(c.ingestService(store, store, false)).Register(api.Group("/datasets"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTPMaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("Ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	checker.SetReady(true)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down ops server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Ops server did not shut down cleanly")
	}
	return s.Stop(shutdownCtx)
}
