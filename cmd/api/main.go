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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/abdelrahman-hamdy/itqan-platform-sub042/api/swagger"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/handler"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/middleware"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/repository"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/cache"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/config"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/database"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/logger"
	corsmiddleware "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/middleware/cors"
	reqidmiddleware "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/middleware/requestid"
)

// @title Itqan Live Sessions API
// @version 1.0.0
// @description Session lifecycle and attendance reconciliation service
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs dedup and room persistence; the service degrades
		// gracefully without it.
		logr.Sugar().Warnw("redis unavailable, soft state disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	academyRepo := repository.NewAcademyRepository(db)
	roomStateRepo := repository.NewRoomStateRepository(redisClient)

	// Services.
	metricsSvc := service.NewMetricsService()
	attendanceSvc := service.NewAttendanceService(attendanceRepo, cfg.Meetings.StaleGraceMinutes, logr)

	notifierSvc := service.NewNotifierService(cfg.Notifier, logr)
	notifierSvc.Start(ctx)
	defer notifierSvc.Stop()

	sessionSvc := service.NewSessionService(
		sessionRepo, attendanceSvc, academyRepo, cfg.Meetings,
		service.HistoricalAttendancePolicy{}, notifierSvc, metricsSvc, logr,
	)

	var recorder service.RecordingStarter = service.NoopRecordingService{}
	if cfg.Recording.Enabled {
		recorder = service.NewHTTPRecordingService(cfg.Recording, logr)
	}

	webhookSvc := service.NewWebhookService(
		sessionSvc, attendanceSvc, recorder, roomStateRepo,
		cfg.Meetings.DedupTTL, cfg.Meetings.RoomPersistTTL, metricsSvc, logr,
	)
	schedulerSvc := service.NewSchedulerService(sessionRepo, sessionSvc, attendanceSvc, cfg.Meetings, metricsSvc, logr)
	authSvc := service.NewAuthService(cfg.JWT)
	reportSvc := service.NewReportService(sessionSvc, attendanceSvc, logr)

	// Handlers.
	webhookHandler := handler.NewWebhookHandler(webhookSvc)
	schedulerHandler := handler.NewSchedulerHandler(schedulerSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, attendanceSvc, reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	r.POST("/webhooks/meetings", webhookHandler.Receive)

	api := r.Group("/api/v1")
	api.Use(middleware.JWT(authSvc))
	{
		api.POST("/scheduler/tick",
			middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
			schedulerHandler.Tick)

		sessions := api.Group("/sessions")
		{
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.GET("/:id/window", sessionHandler.Window)
			sessions.GET("/:id/attendance", sessionHandler.Attendance)
			sessions.GET("/:id/attendance/:userId/cycles", sessionHandler.Cycles)
			sessions.GET("/:id/report", sessionHandler.Report)
			sessions.POST("/:id/reprocess",
				middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
				sessionHandler.Reprocess)
			sessions.POST("/:id/cancel",
				middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher),
				sessionHandler.Cancel)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Scheduler.Enabled {
		go schedulerSvc.Run(ctx, cfg.Scheduler.TickInterval)
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
	logr.Sugar().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
