package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/handlers"
	"github.com/turtacn/terminal-planner/internal/interfaces/http/middleware"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// RequestMetrics records per-request and per-error metrics.
type RequestMetrics interface {
	middleware.HTTPObserver
	handlers.ErrorRecorder
}

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	SimulationHandler *handlers.SimulationHandler
	StreamHandler     *handlers.StreamHandler
	HealthHandler     *handlers.HealthHandler

	// Middleware
	Logging     middleware.LoggingConfig
	CORSOrigins []string

	// Infrastructure
	Logger         logging.Logger
	Metrics        RequestMetrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter constructs the complete HTTP route tree from the given configuration.
// Nil handlers leave their routes unregistered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
		r.Use(handlers.UseErrorRecorder(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	}

	// --- Health and metrics ---
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	sims := api.Group("/simulations")
	if cfg.StreamHandler != nil {
		sims.GET("/stream", cfg.StreamHandler.Stream)
	}
	if cfg.SimulationHandler != nil {
		cfg.SimulationHandler.RegisterRoutes(sims)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: string(errors.ErrCodeNotFound), Message: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ErrorResponse{Code: string(errors.ErrCodeBadRequest), Message: "method not allowed"})
	})
	return r
}
