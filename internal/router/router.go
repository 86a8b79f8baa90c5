// Package router mounts the HTTP surface onto a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/handler"
	"github.com/noah-isme/arc-docs-api/internal/middleware"
	"github.com/noah-isme/arc-docs-api/internal/service"
	"github.com/noah-isme/arc-docs-api/pkg/config"
	"github.com/noah-isme/arc-docs-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/arc-docs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/arc-docs-api/pkg/middleware/requestid"
)

// Dependencies are the handlers and collaborators the routes need.
type Dependencies struct {
	Documents *handler.DocumentHandler
	Approvals *handler.ApprovalHandler
	Versions  *handler.VersionHandler
	Audit     *handler.AuditHandler
	Directory *handler.DirectoryHandler
	Sequences *handler.SequenceHandler
	Ops       *handler.MetricsHandler
	Auth      middleware.TokenValidator
	Metrics   *service.MetricsService
	Logger    *zap.Logger
}

// New builds the engine with the shared middleware chain and every route.
func New(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Ops.Health)
	r.GET("/ready", deps.Ops.Ready)
	r.GET("/metrics", deps.Ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// signed tokens carry their own authorisation
	api.GET("/downloads/:token", deps.Versions.Resolve)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Auth))

	documents := secured.Group("/documents")
	documents.POST("", deps.Documents.Create)
	documents.GET("", deps.Documents.List)
	documents.GET("/stats", deps.Documents.Statistics)
	document := documents.Group("/:id", middleware.UUIDParam("id", "document not found"))
	document.GET("", deps.Documents.Get)
	document.PATCH("", deps.Documents.Update)
	document.DELETE("", deps.Documents.Delete)
	document.POST("/submit", deps.Documents.Submit)
	document.POST("/withdraw", deps.Documents.Withdraw)
	document.POST("/obsolete", deps.Documents.Obsolete)
	document.POST("/revisions", deps.Documents.Revise)
	document.POST("/print", deps.Documents.Print)
	document.POST("/decision", deps.Approvals.Decide)
	document.GET("/approvals", deps.Approvals.ListForDocument)
	document.GET("/versions", deps.Versions.List)
	document.GET("/versions/:version/download", deps.Versions.Download)

	secured.GET("/approvals/pending", deps.Approvals.Pending)
	secured.GET("/sequences/next", deps.Sequences.Next)

	secured.GET("/audit-logs", deps.Audit.Query)
	secured.GET("/audit-logs/export", deps.Audit.Export)

	secured.GET("/departments", deps.Directory.ListDepartments)
	secured.POST("/departments", deps.Directory.CreateDepartment)
	secured.GET("/departments/:id", middleware.UUIDParam("id", "department not found"), deps.Directory.GetDepartment)
	secured.GET("/users/:id/roles", deps.Directory.ListUserRoles)
	secured.POST("/roles", deps.Directory.AssignRole)
	secured.DELETE("/roles/:id", middleware.UUIDParam("id", "role assignment not found"), deps.Directory.RevokeRole)

	return r
}
