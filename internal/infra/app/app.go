package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/infra/config"
	"github.com/arklim/auth-service/internal/infra/logger"
	"github.com/arklim/auth-service/internal/infra/telemetry"
	redisrepo "github.com/arklim/auth-service/internal/repository/redis"
	"github.com/arklim/auth-service/internal/transport/http/middleware"
	"github.com/arklim/auth-service/internal/transport/http/routes"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	core   *Core
	tracer *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	core, err := NewCore(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = core.Close()
		_ = tracer.Shutdown(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	window := cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(core.Redis.Redis(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "auth:rate-limit",
		TTL:       window * 2,
	})

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        core.Auth,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:     httpMetrics,
		Gatherer:    prometheus.DefaultGatherer,
		Database:    core.Database,
		Cache:       core.Redis,
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		core:   core,
		tracer: tracer,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and releases resources.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if err := a.core.Close(); err != nil {
			a.logger.Warn("close resources", zap.Error(err))
		}
	}()
	defer func() {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		timeout := a.cfg.App.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a.logger.Info("shutting down auth API")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
