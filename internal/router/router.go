// Package router assembles the HTTP surface of the round engine.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/placement-rounds-api/internal/handler"
	"github.com/noah-isme/placement-rounds-api/internal/middleware"
	"github.com/noah-isme/placement-rounds-api/internal/models"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	"github.com/noah-isme/placement-rounds-api/pkg/config"
	"github.com/noah-isme/placement-rounds-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/placement-rounds-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/placement-rounds-api/pkg/middleware/requestid"
	"github.com/noah-isme/placement-rounds-api/pkg/ratelimit"
)

// Dependencies carries everything the route table needs.
type Dependencies struct {
	Config         *config.Config
	Logger         *zap.Logger
	Tokens         middleware.TokenValidator
	CheckInLimiter ratelimit.Limiter
	Metrics        *service.MetricsService

	Sessions      *handler.AttendanceSessionHandler
	CheckIns      *handler.CheckInHandler
	Applications  *handler.ApplicationHandler
	BulkAdvance   *handler.BulkAdvanceHandler
	Rounds        *handler.RoundHandler
	Observability *handler.MetricsHandler
}

// New builds the gin engine with global middleware and every route.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{APIPrefix: "/api/v1"}
	}
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	if deps.Observability != nil {
		r.GET("/health", deps.Observability.Health)
		r.GET("/ready", deps.Observability.Ready)
		r.GET("/metrics", deps.Observability.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.Tokens))

	admin := middleware.RequireAdmin()
	anyone := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleStudent)
	student := middleware.RequireRoles(models.RoleStudent)

	rounds := api.Group("/rounds/:roundId")
	{
		rounds.POST("/attendance-session/start", admin, deps.Sessions.Start)
		rounds.POST("/attendance-session/stop", admin, deps.Sessions.Stop)
		rounds.GET("/attendance-session/status", anyone, deps.Sessions.Status)
		rounds.POST("/attendance-checkin", student, middleware.RateLimitPerUser(deps.CheckInLimiter), deps.CheckIns.CheckIn)
		rounds.GET("/roster", admin, deps.Rounds.Roster)
	}

	jobs := api.Group("/jobs/:jobId")
	{
		jobs.GET("/rounds", anyone, deps.Rounds.ListByJob)
		jobs.GET("/applications", admin, deps.Applications.List)
	}

	apps := api.Group("/applications/:id")
	{
		apps.GET("", anyone, deps.Applications.Get)
		apps.GET("/progress", anyone, deps.Applications.Progress)
		apps.PUT("", admin, deps.Applications.UpdateStatus)
		apps.POST("/advance", admin, deps.Applications.Advance)
		apps.POST("/finalize", admin, deps.Applications.Finalize)
		apps.PUT("/rounds/:roundId/attendance", admin, deps.Applications.MarkAttendance)
		// :id is the job id here
		apps.POST("/bulk-advance", admin, deps.BulkAdvance.BulkAdvance)
	}

	if deps.Observability != nil {
		api.GET("/metrics/summary", admin, deps.Observability.Snapshot)
	}

	return r
}
