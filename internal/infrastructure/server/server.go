package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	httpHandlers "github.com/taskmaster/pulse/internal/adapters/http"
	"github.com/taskmaster/pulse/internal/adapters/repository"
	"github.com/taskmaster/pulse/internal/application/services"
	"github.com/taskmaster/pulse/internal/application/validation"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/infrastructure/database"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"

	_ "github.com/taskmaster/pulse/docs"
)

// Dependencies are the collaborators the server is assembled from.
type Dependencies struct {
	DB       *database.DB
	Cache    ports.CacheRepository
	Enricher ports.Enricher
	// Registry receives the HTTP and report cache metrics. A fresh registry is
	// used when nil.
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	logger   *logger.Logger
	db       *database.DB
	cache    ports.CacheRepository
	enricher ports.Enricher
	registry *prometheus.Registry
	auth     ports.AuthService
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, appLogger *logger.Logger) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("server: database is required")
	}
	if deps.Cache == nil || deps.Enricher == nil {
		return nil, errors.New("server: cache and enricher are required")
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.Validator = validation.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	// Initialize services
	store := repository.NewStore(deps.DB)
	repos := store.Repositories()
	userService := services.NewUserService(repos, store, appLogger)
	authService := services.NewAuthService(userService, repos, cfg.JWT, appLogger)
	analyticsService := services.NewAnalyticsService(repos, deps.Cache, deps.Enricher, cfg.Redis.ReportTTL, appLogger, deps.Registry)
	taskService := services.NewTaskService(repos, store, deps.Enricher, analyticsService, appLogger)

	server := &Server{
		echo:     e,
		config:   cfg,
		logger:   appLogger,
		db:       deps.DB,
		cache:    deps.Cache,
		enricher: deps.Enricher,
		registry: deps.Registry,
		auth:     authService,
	}

	server.setupMiddleware()
	if cfg.Metrics.Enabled {
		server.setupMetrics()
	}
	server.setupRoutes(
		httpHandlers.NewAuthHandler(authService, appLogger),
		httpHandlers.NewUserHandler(userService, appLogger),
		httpHandlers.NewTaskHandler(taskService, appLogger),
		httpHandlers.NewAnalyticsHandler(analyticsService, appLogger),
	)

	return server, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"latency_ms", float64(values.Latency.Nanoseconds()) / 1000000,
				"remote_ip", values.RemoteIP,
				"user_agent", values.UserAgent,
				"request_id", values.RequestID,
			}

			if values.Error != nil {
				fields = append(fields, "error", values.Error.Error())
				s.logger.Errorw("HTTP request failed", fields...)
			} else {
				s.logger.Infow("HTTP request", fields...)
			}

			return nil
		},
	}))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
	}))

	if s.config.Security.RateLimitRequests > 0 && s.config.Security.RateLimitWindow > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(float64(s.config.Security.RateLimitRequests) / s.config.Security.RateLimitWindow.Seconds()),
					Burst:     s.config.Security.RateLimitRequests,
					ExpiresIn: s.config.Security.RateLimitWindow,
				},
			),
			IdentifierExtractor: func(ctx echo.Context) (string, error) {
				return ctx.RealIP(), nil
			},
			ErrorHandler: func(context echo.Context, err error) error {
				return context.JSON(http.StatusForbidden, ports.ErrorResponse{Code: "FORBIDDEN", Message: "rate limit exceeded"})
			},
			DenyHandler: func(context echo.Context, identifier string, err error) error {
				return context.JSON(http.StatusTooManyRequests, ports.ErrorResponse{Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			},
		}))
	}

	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/swagger")
		},
	}))

	if s.config.Server.RequestTimeout > 0 {
		s.echo.Use(middleware.ContextTimeout(s.config.Server.RequestTimeout))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(authHandler *httpHandlers.AuthHandler, userHandler *httpHandlers.UserHandler, taskHandler *httpHandlers.TaskHandler, analyticsHandler *httpHandlers.AnalyticsHandler) {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/detailed", s.detailedHealthCheck)
	s.echo.GET("/ready", s.readinessCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := s.echo.Group("/api/v1")
	requireAuth := s.authMiddleware(s.auth)

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.RefreshToken)
	authGroup.POST("/logout", authHandler.Logout, requireAuth)

	userGroup := v1.Group("/users", requireAuth)
	userGroup.GET("/me", userHandler.GetCurrentUser)
	userGroup.PUT("/me", userHandler.UpdateCurrentUser)
	userGroup.PUT("/me/preferences", userHandler.UpdatePreferences)
	userGroup.DELETE("/me", userHandler.DeleteCurrentUser)
	userGroup.POST("/me/stats/reconcile", userHandler.ReconcileStats)

	taskGroup := v1.Group("/tasks", requireAuth)
	taskGroup.GET("", taskHandler.ListTasks)
	taskGroup.POST("", taskHandler.CreateTask)
	taskGroup.GET("/overdue", taskHandler.OverdueTasks)
	taskGroup.GET("/upcoming", taskHandler.UpcomingTasks)
	taskGroup.GET("/category/:category", taskHandler.TasksByCategory)
	taskGroup.GET("/priority/:priority", taskHandler.TasksByPriority)
	taskGroup.POST("/bulk", taskHandler.BulkCreate)
	taskGroup.DELETE("/bulk", taskHandler.BulkDelete)
	taskGroup.GET("/:id", taskHandler.GetTask)
	taskGroup.PUT("/:id", taskHandler.UpdateTask)
	taskGroup.DELETE("/:id", taskHandler.DeleteTask)
	taskGroup.PATCH("/:id/status", taskHandler.UpdateStatus)
	taskGroup.PATCH("/:id/progress", taskHandler.UpdateProgress)
	taskGroup.GET("/:id/history", taskHandler.History)
	taskGroup.GET("/:id/insights", taskHandler.Insights)

	analyticsGroup := v1.Group("/analytics", requireAuth)
	analyticsGroup.GET("/dashboard", analyticsHandler.Dashboard)
	analyticsGroup.GET("/completion-rate", analyticsHandler.CompletionRate)
	analyticsGroup.GET("/categories", analyticsHandler.Categories)
	analyticsGroup.GET("/impact", analyticsHandler.Impact)
	analyticsGroup.GET("/priorities", analyticsHandler.Priorities)
	analyticsGroup.GET("/timeline", analyticsHandler.Timeline)
	analyticsGroup.GET("/performance", analyticsHandler.Performance)
	analyticsGroup.GET("/productivity", analyticsHandler.Productivity)
	analyticsGroup.GET("/risks", analyticsHandler.Risks)
	analyticsGroup.GET("/optimization-tips", analyticsHandler.OptimizationTips)
	analyticsGroup.GET("/recommendations", analyticsHandler.Recommendations)
	analyticsGroup.GET("/export", analyticsHandler.Export)
}

// setupMetrics configures Prometheus metrics
func (s *Server) setupMetrics() {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	s.registry.MustRegister(requestsTotal, requestDuration)

	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", c.Response().Status),
			).Inc()

			requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())

			return nil
		}
	})

	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) detailedHealthCheck(c echo.Context) error {
	ctx := c.Request().Context()
	status := "ok"
	checks := make(map[string]interface{})

	if err := s.db.HealthCheck(ctx); err != nil {
		status = "error"
		checks["database"] = map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	} else {
		checks["database"] = map[string]interface{}{
			"status": "ok",
			"stats":  s.db.GetConnectionInfo(),
		}
	}

	if s.config.Redis.Enabled {
		if err := s.cache.Ping(ctx); err != nil {
			if status == "ok" {
				status = "degraded"
			}
			checks["redis"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		} else {
			checks["redis"] = map[string]interface{}{"status": "ok"}
		}
	} else {
		checks["redis"] = map[string]interface{}{"status": "disabled"}
	}

	checks["enrichment"] = map[string]interface{}{
		"status":  s.enricher.State(),
		"enabled": s.config.AI.Enabled,
	}

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
		"version": map[string]string{
			"app": s.config.App.Version,
			"go":  runtime.Version(),
		},
	}

	if status == "error" {
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if err := s.db.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "database_not_ready",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout

	s.logger.Infow("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// statusFor maps domain error codes onto HTTP statuses.
func statusFor(code entities.ErrorCode) int {
	switch code {
	case entities.ErrCodeNotFound:
		return http.StatusNotFound
	case entities.ErrCodeValidation:
		return http.StatusBadRequest
	case entities.ErrCodeConflict:
		return http.StatusConflict
	case entities.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// customErrorHandler renders every error as an ErrorResponse. Storage and
// unexpected failures are logged and reported with a generic message.
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code = http.StatusInternalServerError
			body = ports.ErrorResponse{Code: "INTERNAL", Message: http.StatusText(http.StatusInternalServerError)}
			dErr *entities.Error
			he   *echo.HTTPError
		)

		switch {
		case errors.As(err, &dErr):
			code = statusFor(dErr.Code)
			if code != http.StatusInternalServerError {
				body = ports.ErrorResponse{Code: string(dErr.Code), Message: dErr.Message, Fields: dErr.Fields}
			}
		case errors.As(err, &he):
			code = he.Code
			body = ports.ErrorResponse{Code: strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_")), Message: fmt.Sprint(he.Message)}
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Errorw("Error sending response", "error", err)
		}
	}
}
