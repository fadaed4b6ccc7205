package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Music-Vine/conductor/internal/handler"
	"github.com/Music-Vine/conductor/internal/middleware"
	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/pkg/config"
	"github.com/Music-Vine/conductor/pkg/logger"
	corsmiddleware "github.com/Music-Vine/conductor/pkg/middleware/cors"
	reqidmiddleware "github.com/Music-Vine/conductor/pkg/middleware/requestid"
)

// NewRouter mounts every HTTP route on a fresh gin engine.
func NewRouter(a *App) *gin.Engine {
	cfg := a.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/health", "/ready", "/metrics"))

	checks := make(map[string]handler.ReadinessCheck, len(a.Checks))
	for name, check := range a.Checks {
		checks[name] = check
	}
	metricsHandler := handler.NewMetricsHandler(a.Metrics.Handler(), checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	assetHandler := handler.NewAssetHandler(a.Assets)
	userHandler := handler.NewUserHandler(a.Users)
	auditHandler := handler.NewAuditHandler(a.Audit)
	bulkHandler := handler.NewBulkHandler(a.Bulk, a.Logger, cfg.Bulk.EventBuffer)

	readers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleReviewer, models.RoleViewer)
	reviewers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleReviewer)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(a.Tokens))

	assets := api.Group("/assets")
	assets.GET("", readers, assetHandler.List)
	assets.GET("/:id", readers, assetHandler.Get)
	assets.POST("/:id/transitions", reviewers, assetHandler.Transition)

	users := api.Group("/users", admins)
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)

	bulkRoutes := api.Group("/bulk", reviewers)
	bulkRoutes.POST("/stream", bulkHandler.Stream)
	bulkRoutes.POST("/jobs", bulkHandler.Enqueue)

	audit := api.Group("/audit", admins)
	audit.GET("/bulk-operations", auditHandler.List)
	audit.GET("/bulk-operations/:id", auditHandler.Get)

	return r
}
