package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/infra/config"
	"github.com/arklim/auth-service/internal/transport/http/handlers"
	"github.com/arklim/auth-service/internal/transport/http/middleware"
	"github.com/arklim/auth-service/internal/usecase"
)

// Pinger exposes readiness behaviour for a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        *usecase.AuthService
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Database    Pinger
	Cache       Pinger
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(middleware.TracingOptions{ServiceName: deps.Config.Telemetry.ServiceName}))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if len(deps.Config.HTTP.CORSAllowOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.HTTP.CORSAllowOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if deps.Auth != nil {
		authHandler := handlers.NewAuthHandler(deps.Auth, handlers.CookieSettings{
			Secure: deps.Config.JWT.CookieSecure,
			Domain: deps.Config.JWT.CookieDomain,
		})
		authHandler.RegisterRoutes(r.Group("/api/v1/auth"), buildRateLimits(deps))
	}

	return r
}

func buildRateLimits(deps Dependencies) handlers.RouteMiddlewares {
	settings := deps.Config.RateLimit
	if deps.RateLimiter == nil || !settings.Enabled {
		return handlers.RouteMiddlewares{}
	}

	window := settings.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	limit := func(name string, attempts int) []gin.HandlerFunc {
		if attempts <= 0 {
			return nil
		}
		return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       name,
			Limit:      attempts,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		})}
	}

	return handlers.RouteMiddlewares{
		Register: limit("auth_register_ip", settings.RegisterMaxAttempts),
		Login:    limit("auth_login_ip", settings.LoginMaxAttempts),
		Refresh:  limit("auth_refresh_ip", settings.RefreshMaxAttempts),
	}
}
