package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api/handler"
	"github.com/taskboard/uaa/internal/api/middleware"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/ports"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Auth      ports.AuthService
	Users     ports.UserService
	Incidents ports.IncidentLister
	// AccessVerifier authenticates bearer tokens on protected routes.
	AccessVerifier ports.Verifier
	Health         []handler.Dependency
	Log            zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// HTTP metrics live in their own registry so that building more than one
	// router in a process does not collide on registration.
	httpMetrics := prometheus.NewRegistry()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "uaa",
		Subsystem:  "http",
		Registerer: httpMetrics,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	userHandler := handler.NewUserHandler(deps.Users)
	incidentHandler := handler.NewIncidentHandler(deps.Incidents)
	authMiddleware := middleware.Auth(deps.AccessVerifier)
	adminOnly := middleware.RBAC(domain.RoleAdmin)

	// --- Auth routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/token", authHandler.Token)
	e.POST("/auth/refresh", authHandler.Refresh)
	e.POST("/auth/revoke", authHandler.Revoke, authMiddleware)
	e.GET("/auth/me", authHandler.Me, authMiddleware)

	// --- Admin routes ---
	e.POST("/admin/users", authHandler.CreateUser, authMiddleware, adminOnly)
	e.DELETE("/users/:id", userHandler.Delete, authMiddleware, adminOnly)
	e.GET("/admin/incidents", incidentHandler.ListOpen, authMiddleware, adminOnly)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Health...)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Metrics ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: prometheus.Gatherers{prometheus.DefaultGatherer, httpMetrics},
	}))

	return e
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURIPath:   true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
