package router

import (
	"strings"
	"time"

	"discussion-facilitator/backend/conversation/api"
	"discussion-facilitator/backend/conversation/ws"
	"discussion-facilitator/backend/pkg/config"
	"discussion-facilitator/backend/pkg/di"
	"discussion-facilitator/backend/pkg/errors"
	"discussion-facilitator/backend/pkg/logger"
	"discussion-facilitator/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Hub       *ws.Hub
	Config    *config.Config

	rateLimiter *middleware.RateLimiter
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("Invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	// Request id first so the request logger picks it up
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(middleware.BodyLimit(cfg.Security.MaxBodySize))

	// Health probes, scrapes and the websocket upgrade are not limited
	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:           rate.Limit(cfg.Security.RateLimit),
		Burst:           cfg.Security.RateLimitBurst,
		ExpiryDuration:  time.Hour,
		CleanupInterval: time.Minute,
		Skip: func(c *gin.Context) bool {
			p := c.Request.URL.Path
			return p == "/ws" || p == "/metrics" || strings.HasSuffix(p, "/health")
		},
	})
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         container.Hub,
		Config:      cfg,
		rateLimiter: rateLimiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() error {
	r.setupHealthRoutes()

	r.Engine.GET("/metrics", gin.WrapH(r.Container.MetricsHandler))
	r.Engine.GET("/ws", r.Hub.ServeWs)

	v1 := r.Engine.Group("/api/v1")
	if err := r.AddOpenAPIValidation(v1, api.OpenAPISchema); err != nil {
		return err
	}
	v1.GET("/health", r.Container.Health.Handler())
	api.RegisterMessageRoutes(v1, r.Container.MessageHandler)

	return nil
}

// Close stops background middleware workers
func (r *Router) Close() {
	r.rateLimiter.Stop()
}
