package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/noah-isme/placement-rounds-api/api/swagger"
	"github.com/noah-isme/placement-rounds-api/internal/handler"
	"github.com/noah-isme/placement-rounds-api/internal/repository"
	"github.com/noah-isme/placement-rounds-api/internal/router"
	"github.com/noah-isme/placement-rounds-api/internal/service"
	"github.com/noah-isme/placement-rounds-api/pkg/cache"
	"github.com/noah-isme/placement-rounds-api/pkg/config"
	"github.com/noah-isme/placement-rounds-api/pkg/database"
	"github.com/noah-isme/placement-rounds-api/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logr, err := bootstrap()
		if err != nil {
			return err
		}
		defer logr.Sync() //nolint:errcheck
		return serve(cfg, logr)
	},
}

func serve(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("database connection failed", zap.Error(err))
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			logr.Error("migration failed", zap.Error(err))
			return err
		}
		logr.Info("migrations applied")
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// the service runs without Redis, only slower and with per-process rate limits
		logr.Warn("redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	roundRepo := repository.NewRoundRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	sessionRepo := repository.NewAttendanceSessionRepository(db)
	directoryRepo := repository.NewStudentDirectoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	}

	auditSvc := service.NewAuditService(auditRepo, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	}, logr)
	// not tied to ctx so buffered entries are flushed by Stop after the signal
	auditSvc.Start(context.Background())

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	roundSvc := service.NewRoundService(roundRepo, cacheSvc, logr)
	sessionSvc := service.NewAttendanceSessionService(sessionRepo, roundRepo, service.AttendanceSessionConfig{
		MinRefreshSeconds: cfg.Attendance.MinRefreshSeconds,
		MaxRefreshSeconds: cfg.Attendance.MaxRefreshSeconds,
		CodeLength:        cfg.Attendance.CodeLength,
	}, logr, service.WithSessionAudit(auditSvc), service.WithSessionMetrics(metrics))
	appSvc := service.NewApplicationService(appRepo, roundRepo, validate, logr,
		service.WithApplicationCache(cacheSvc),
		service.WithApplicationAudit(auditSvc),
		service.WithApplicationMetrics(metrics))
	bulkSvc := service.NewBulkAdvanceService(roundRepo, directoryRepo, appSvc, auditSvc, metrics, service.BulkAdvanceConfig{
		RequireAttendance: cfg.Bulk.RequireAttendance,
		Concurrency:       cfg.Bulk.Concurrency,
	}, logr)
	checkInSvc := service.NewCheckInService(roundRepo, sessionSvc, appSvc, auditSvc, metrics, logr)
	rosterSvc := service.NewRosterService(roundRepo, directoryRepo, logr)

	readiness := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	engine := router.New(router.Dependencies{
		Config:         cfg,
		Logger:         logr,
		Tokens:         tokens,
		CheckInLimiter: ratelimit.New(redisClient, cfg.CheckIn.RateLimit, cfg.CheckIn.RateWindow, "ratelimit:checkin"),
		Metrics:        metrics,
		Sessions:       handler.NewAttendanceSessionHandler(sessionSvc),
		CheckIns:       handler.NewCheckInHandler(checkInSvc),
		Applications:   handler.NewApplicationHandler(appSvc),
		BulkAdvance:    handler.NewBulkAdvanceHandler(bulkSvc),
		Rounds:         handler.NewRoundHandler(roundSvc, rosterSvc),
		Observability:  handler.NewMetricsHandler(metrics, readiness),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
			auditSvc.Stop()
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
	auditSvc.Stop()
	logr.Info("server exited")
	return nil
}
