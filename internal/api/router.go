// Package api wires the microdc REST API: middleware, handlers and routes.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/api/handlers"
	"github.com/yaroslav/microdc/internal/api/middleware"
	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/internal/service"
)

const (
	// limiterCleanup is how often idle rate limiter buckets are dropped.
	limiterCleanup = time.Minute

	// On-demand reconciliation per datacenter: one pass every 5s, bursts of 3.
	reconcileTriggerRPS   = 0.2
	reconcileTriggerBurst = 3
)

// ReconcileManager runs reconciliation passes on demand and remembers results.
type ReconcileManager interface {
	handlers.ReconcileRunner
	handlers.ResultForgetter
}

// RouterConfig holds configuration for setting up the HTTP router.
type RouterConfig struct {
	// Logger is the Zap logger for request logging.
	Logger *zap.Logger

	// Store is pinged by the readiness probe.
	Store handlers.Pinger

	// Datacenters, Workspaces, Networks and DeviceConfigs serve entity CRUD.
	Datacenters   *service.DatacenterService
	Workspaces    *service.WorkspaceService
	Networks      *service.NetworkService
	DeviceConfigs *service.DeviceConfigService

	// Reconciler serves on-demand passes and last results.
	Reconciler ReconcileManager

	// AllowOrigins is the list of allowed CORS origins.
	// Use []string{"*"} to allow all origins.
	AllowOrigins []string

	// RateLimit configures per-IP limiting; a zero rate disables it.
	RateLimit config.RateLimitConfig
}

// SetupRouter creates and configures the Gin HTTP router with all routes and middleware.
//
// This function sets up:
// - Global middleware (recovery, metrics, logging, CORS, rate limiting)
// - Health check and metrics endpoints
// - Entity schema endpoint
// - Datacenter, workspace, network and device template CRUD
// - On-demand reconciliation
//
// Parameters:
//   - config: Router configuration
//
// Returns:
//   - Configured Gin engine ready to serve requests
//   - Function stopping the rate limiters' background cleanup
func SetupRouter(config *RouterConfig) (*gin.Engine, func()) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Recovery middleware (recover from panics)
	router.Use(gin.Recovery())

	// Metrics middleware (should be early to capture all requests)
	router.Use(middleware.MetricsMiddleware())

	router.Use(middleware.RequestLogger(logger))

	if len(config.AllowOrigins) > 0 {
		router.Use(middleware.CORS(config.AllowOrigins))
	}

	var limiters []*middleware.RateLimiter
	if config.RateLimit.RequestsPerSecond > 0 {
		ipLimiter := middleware.NewRateLimiter(middleware.ScopeIP,
			config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, limiterCleanup)
		limiters = append(limiters, ipLimiter)
		router.Use(middleware.RateLimitByIP(ipLimiter))
	}
	reconcileLimiter := middleware.NewRateLimiter(middleware.ScopeReconcile,
		reconcileTriggerRPS, reconcileTriggerBurst, limiterCleanup)
	limiters = append(limiters, reconcileLimiter)

	stop := func() {
		for _, l := range limiters {
			l.Stop()
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Error:     "not_found",
			Message:   "Route not found",
			RequestID: middleware.GetRequestID(c),
		})
	})

	healthHandler := handlers.NewHealthHandler(config.Store)
	datacenterHandler := handlers.NewDatacenterHandler(config.Datacenters, config.Reconciler)
	workspaceHandler := handlers.NewWorkspaceHandler(config.Workspaces)
	networkHandler := handlers.NewNetworkHandler(config.Networks)
	deviceConfigHandler := handlers.NewDeviceConfigHandler(config.DeviceConfigs)
	reconcileHandler := handlers.NewReconcileHandler(config.Reconciler, config.Datacenters)

	// Health check endpoints
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Liveness)
		health.GET("/ready", healthHandler.Readiness)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/schema/:entity", handlers.Schema)

		datacenters := v1.Group("/datacenters")
		{
			datacenters.POST("", datacenterHandler.Create)
			datacenters.GET("", datacenterHandler.List)
			datacenters.GET("/:id", datacenterHandler.Get)
			datacenters.PATCH("/:id", datacenterHandler.Update)
			datacenters.DELETE("/:id", datacenterHandler.Delete)

			datacenters.POST("/:id/workspaces", workspaceHandler.Create)
			datacenters.GET("/:id/workspaces", workspaceHandler.List)

			datacenters.POST("/:id/device-configs", deviceConfigHandler.Create)
			datacenters.GET("/:id/device-configs", deviceConfigHandler.List)

			datacenters.POST("/:id/reconcile", middleware.RateLimitByDatacenter(reconcileLimiter), reconcileHandler.Trigger)
			datacenters.GET("/:id/reconcile", reconcileHandler.Last)
		}

		workspaces := v1.Group("/workspaces")
		{
			workspaces.GET("/:id", workspaceHandler.Get)
			workspaces.PATCH("/:id", workspaceHandler.Update)
			workspaces.DELETE("/:id", workspaceHandler.Delete)

			workspaces.POST("/:id/networks", networkHandler.Create)
			workspaces.GET("/:id/networks", networkHandler.List)
		}

		networks := v1.Group("/networks")
		{
			networks.GET("/:id", networkHandler.Get)
			networks.PATCH("/:id", networkHandler.Update)
			networks.DELETE("/:id", networkHandler.Delete)
		}

		deviceConfigs := v1.Group("/device-configs")
		{
			deviceConfigs.GET("/:id", deviceConfigHandler.Get)
			deviceConfigs.PATCH("/:id", deviceConfigHandler.Update)
			deviceConfigs.DELETE("/:id", deviceConfigHandler.Delete)
		}
	}

	return router, stop
}
