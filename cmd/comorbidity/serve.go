package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
	"github.com/ehr/comorbidity/internal/platform/db"
	"github.com/ehr/comorbidity/internal/platform/fhir"
	"github.com/ehr/comorbidity/internal/platform/middleware"
	"github.com/ehr/comorbidity/internal/platform/openapi"
	"github.com/ehr/comorbidity/internal/platform/telemetry"
)

const apiBasePath = "/api/v1/comorbidity"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
}

// newServer wires middleware and routes. It does not start listening.
func newServer(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(a.log)

	tp := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "comorbidity",
		ServiceVersion: version,
		Environment:    cfg.Env,
		RuntimeMetrics: true,
	})

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.log))
	e.Use(middleware.Recovery(a.log))
	e.Use(tp.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "rules": cfg.RulesSource})
	})
	e.GET("/metrics", tp.PrometheusHandler())
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool))
		if err := tp.RegisterPool(a.pool); err != nil {
			a.log.Warn().Err(err).Msg("pool metrics unavailable")
		}
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group(apiBasePath,
		middleware.RateLimit(rateLimitCfg),
		middleware.BodyLimit(cfg.BodyLimit, cfg.BatchBodyLimit),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)
	svc := a.service()
	svc.SetObserver(tp)
	comorbidity.NewHandler(svc).RegisterRoutes(api)
	openapi.NewGenerator(version, "http://localhost:"+cfg.Port, apiBasePath).RegisterRoutes(api)

	return e
}

func runServer(ctx context.Context, a *app) error {
	e := newServer(a)
	addr := ":" + a.cfg.Port

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", addr).Str("rules", a.cfg.RulesSource).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.log.Info().Msg("server stopped")
	return nil
}

// errorHandler renders errors that reach echo as OperationOutcome resources.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			} else {
				msg = http.StatusText(status)
			}
		} else {
			logger.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("unhandled error")
		}

		var outcome *fhir.OperationOutcome
		switch status {
		case http.StatusNotFound:
			outcome = fhir.NotFoundOutcome(msg)
		case http.StatusMethodNotAllowed:
			outcome = fhir.NotSupportedOutcome(msg)
		case http.StatusRequestEntityTooLarge:
			outcome = fhir.TooCostlyOutcome(msg)
		case http.StatusTooManyRequests:
			outcome = fhir.ThrottleOutcome()
		case http.StatusServiceUnavailable:
			outcome = fhir.TimeoutOutcome()
		default:
			if status >= 500 {
				outcome = fhir.InternalErrorOutcome("internal server error")
			} else {
				outcome = fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, msg)
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, outcome)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

