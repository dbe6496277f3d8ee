package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniguide/corrections-api/api/swagger"
	"github.com/uniguide/corrections-api/internal/handler"
	"github.com/uniguide/corrections-api/internal/middleware"
	"github.com/uniguide/corrections-api/internal/models"
	"github.com/uniguide/corrections-api/internal/repository"
	"github.com/uniguide/corrections-api/internal/schema"
	"github.com/uniguide/corrections-api/internal/service"
	"github.com/uniguide/corrections-api/pkg/cache"
	"github.com/uniguide/corrections-api/pkg/config"
	"github.com/uniguide/corrections-api/pkg/database"
	"github.com/uniguide/corrections-api/pkg/export"
	"github.com/uniguide/corrections-api/pkg/jobs"
	"github.com/uniguide/corrections-api/pkg/logger"
	corsmiddleware "github.com/uniguide/corrections-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniguide/corrections-api/pkg/middleware/requestid"
)

// @title UniGuide Corrections API
// @version 1.0.0
// @description Data correction workflow engine for the UniGuide catalog
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, true)
		defer cacheRepo.Close() //nolint:errcheck
	}

	registry := schema.Default()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	correctionRepo := repository.NewCorrectionRepository(db)
	batchRepo := repository.NewBatchJobRepository(db)
	entityRepo := repository.NewEntityRepository(db, registry)
	statsRepo := repository.NewStatsRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "corrections-api",
	})

	applySvc := service.NewApplyService(batchRepo, correctionRepo, entityRepo, metrics, userRepo, jobs.QueueConfig{
		Workers:     cfg.Queue.Workers,
		BufferSize:  cfg.Queue.BufferSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RetryBase:   cfg.Queue.RetryBase,
		RetryCap:    cfg.Queue.RetryCap,
		Logger:      logr,
	}, logr)

	diffValidator := service.NewDiffValidator(registry, entityRepo, cfg.Review.MinReasonLength, cfg.Review.MaxChanges)
	autoApprove := service.NewAutoApprovalEngine(registry, cfg.AutoApprove.Enabled, cfg.AutoApprove.TrustFloor)
	compiler := service.NewMutationCompiler(registry)

	statsSvc := service.NewStatsService(statsRepo, applySvc, cacheSvc, cfg.Stats.CacheTTL, cfg.Stats.TopReasons, logr)

	correctionSvc := service.NewCorrectionService(
		correctionRepo, batchRepo, userRepo, userRepo,
		diffValidator, autoApprove, compiler, applySvc, statsSvc, logr)

	if err := applySvc.Start(ctx); err != nil {
		logr.Sugar().Fatalw("failed to start apply queue", "error", err)
	}
	defer applySvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	correctionHandler := handler.NewCorrectionHandler(correctionSvc)
	batchHandler := handler.NewBatchJobHandler(applySvc)
	statsHandler := handler.NewStatsHandler(statsSvc, export.NewCSVExporter(), export.NewPDFExporter())
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	corrections := api.Group("/corrections", middleware.JWT(authSvc))
	{
		corrections.POST("", correctionHandler.Submit)
		corrections.GET("", correctionHandler.List)
		corrections.GET("/:id", correctionHandler.Get)
		corrections.GET("/:id/mutation",
			middleware.RequireRoles(models.RoleAdmin, models.RoleModerator),
			correctionHandler.Mutation)
		corrections.POST("/:id/review",
			middleware.RequireRoles(models.RoleAdmin, models.RoleModerator),
			correctionHandler.StartReview)
		corrections.POST("/:id/approve",
			middleware.RequireRoles(models.RoleAdmin, models.RoleModerator),
			correctionHandler.Approve)
		corrections.POST("/:id/reject",
			middleware.RequireRoles(models.RoleAdmin, models.RoleModerator),
			correctionHandler.Reject)
		corrections.POST("/:id/applied",
			middleware.RequireRoles(models.RoleAdmin),
			correctionHandler.MarkApplied)
	}

	batchJobs := api.Group("/batch-jobs", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleModerator))
	{
		batchJobs.GET("", batchHandler.List)
		batchJobs.GET("/:id", batchHandler.Get)
		batchJobs.POST("/:id/requeue", middleware.RequireRoles(models.RoleAdmin), batchHandler.Requeue)
	}

	api.GET("/queue/stats", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleModerator), batchHandler.QueueStats)

	stats := api.Group("/statistics", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleModerator))
	{
		stats.GET("", statsHandler.Statistics)
		stats.GET("/export",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionStatsExport, "statistics"),
			statsHandler.Export)
		stats.GET("/system", metricsHandler.System)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown incomplete", "error", err)
	}
}
