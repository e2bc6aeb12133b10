package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediagate/modgate/internal/config"
	"github.com/mediagate/modgate/internal/handler"
	"github.com/mediagate/modgate/internal/middleware"
	"github.com/mediagate/modgate/internal/pkg/logger"
	"github.com/mediagate/modgate/internal/repository"
	"github.com/mediagate/modgate/internal/service"
	"github.com/mediagate/modgate/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("connected to PostgreSQL")

	auditRepo := repository.NewPostgresAuditRepo(db)
	abuseRepo := repository.NewPostgresAbuseRepo(db)
	flagRepo := repository.NewPostgresFlagRepo(db)
	modRepo := repository.NewPostgresModeratorRepo(db)

	// Signal counters are optional; the engine accepts snapshots directly.
	var metricsRepo *repository.RedisMetricsRepo
	if cfg.Redis.Addr != "" {
		metricsRepo = repository.NewRedisMetricsRepo(cfg, time.Hour)
		if err := metricsRepo.Ping(context.Background()); err != nil {
			logger.Warn("redis unreachable, signal counters disabled", "error", err)
			metricsRepo = nil
		} else {
			logger.Info("connected to Redis")
		}
	}

	// 3. Event feed
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(cfg.Stream.BufferSize)
		hub.Start()
	}

	// 4. Core Services
	auditSvc := service.NewAuditService(auditRepo, cfg.Export.MaxRows)
	abuseSvc := service.NewAbuseService(abuseRepo, auditSvc, eventSink(hub))
	moderationSvc := service.NewModerationService(flagRepo, modRepo, auditSvc, eventSink(hub))
	statsSvc := service.NewStatsService(auditRepo, abuseRepo, flagRepo)
	var collector *service.Collector
	if metricsRepo != nil {
		collector = service.NewCollector(metricsRepo, metricsRepo, abuseSvc)
	}

	// 5. Handlers
	auditHandler := handler.NewAuditHandler(auditSvc)
	abuseHandler := handler.NewAbuseHandler(abuseSvc)
	moderationHandler := handler.NewModerationHandler(moderationSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)

	// 6. Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "modgate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	limiter := middleware.NewActorLimiter(cfg.API.RateQPS, cfg.API.RateBurst)

	v1 := r.Group("/v1")
	v1.Use(middleware.ModeratorAuth(moderationSvc))
	v1.Use(middleware.RateLimitMiddleware(limiter))
	{
		v1.POST("/audit-logs",
			middleware.RequirePermission(moderationSvc, service.PermViewAudit), auditHandler.Log)
		v1.GET("/audit-logs",
			middleware.RequirePermission(moderationSvc, service.PermViewAudit), auditHandler.Query)
		v1.GET("/audit-logs/export",
			middleware.RequirePermission(moderationSvc, service.PermExportAudit), auditHandler.Export)

		v1.GET("/abuse/config",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), abuseHandler.GetConfig)
		v1.PUT("/abuse/config",
			middleware.RequirePermission(moderationSvc, service.PermManageConfig), abuseHandler.UpdateConfig)
		v1.POST("/abuse/detect",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), abuseHandler.Detect)
		v1.POST("/abuse/reports",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), abuseHandler.CreateReport)
		v1.GET("/abuse/reports",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), abuseHandler.QueryReports)
		v1.POST("/abuse/reports/:id/resolve",
			middleware.RequirePermission(moderationSvc, service.PermResolveReports), abuseHandler.ResolveReport)

		v1.POST("/moderation/flags",
			middleware.RequirePermission(moderationSvc, service.PermFlagClient), moderationHandler.FlagClient)
		v1.POST("/moderation/bans",
			middleware.RequirePermission(moderationSvc, service.PermBanToken), moderationHandler.BanToken)
		v1.GET("/moderation/flags/active", moderationHandler.GetActiveFlags)
		v1.GET("/moderation/flagged", moderationHandler.IsFlagged)
		v1.DELETE("/moderation/flags/:id",
			middleware.RequirePermission(moderationSvc, service.PermFlagClient), moderationHandler.DeactivateFlag)
		v1.GET("/moderation/permissions/:id", moderationHandler.Permissions)
		v1.PUT("/moderation/moderators/:id",
			middleware.RequirePermission(moderationSvc, service.PermManageConfig), moderationHandler.SetRole)

		v1.GET("/moderation/stats",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), statsHandler.GetStats)
	}

	if collector != nil {
		collectorHandler := handler.NewCollectorHandler(collector)
		v1.POST("/abuse/signals",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), collectorHandler.RecordSignal)
		v1.POST("/abuse/evaluate",
			middleware.RequirePermission(moderationSvc, service.PermViewReports), collectorHandler.Evaluate)
	}

	if hub != nil {
		streamHandler := handler.NewStreamHandler(hub)
		r.GET("/v1/moderation/events",
			middleware.ModeratorAuth(moderationSvc), streamHandler.Events)
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("modgate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if hub != nil {
		hub.Stop()
	}
	if metricsRepo != nil {
		_ = metricsRepo.Close()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("server exiting")
}

// eventSink adapts a possibly-nil hub to the service EventPublisher.
func eventSink(hub *stream.Hub) service.EventPublisher {
	if hub == nil {
		return nil
	}
	return hub
}
