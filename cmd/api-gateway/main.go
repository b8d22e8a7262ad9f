package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushub/events-api/api/swagger"
	"github.com/campushub/events-api/internal/handler"
	"github.com/campushub/events-api/internal/middleware"
	"github.com/campushub/events-api/internal/models"
	"github.com/campushub/events-api/internal/repository"
	"github.com/campushub/events-api/internal/service"
	"github.com/campushub/events-api/pkg/cache"
	"github.com/campushub/events-api/pkg/config"
	"github.com/campushub/events-api/pkg/database"
	"github.com/campushub/events-api/pkg/jobs"
	"github.com/campushub/events-api/pkg/logger"
	corsmiddleware "github.com/campushub/events-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushub/events-api/pkg/middleware/requestid"
	"github.com/campushub/events-api/pkg/qrtoken"
)

// @title Campus Events API
// @version 1.0.0
// @description Event approval, registration, and QR attendance backend
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	codec := qrtoken.NewCodec(cfg.QRToken.Secret)

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	notificationSvc := service.NewNotificationService(service.NewLogSender(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, cfg.Notifications.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	eventSvc := service.NewEventService(eventRepo, approvalRepo, cacheRepo, userRepo, validate, logr, cfg.Events.CacheTTL)
	approvalSvc := service.NewApprovalService(approvalRepo, eventRepo, cacheRepo, userRepo, notificationSvc, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, eventRepo, codec, userRepo, notificationSvc, logr)
	attendanceSvc := service.NewAttendanceService(registrationRepo, eventRepo, codec, userRepo, notificationSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	eventHandler := handler.NewEventHandler(eventSvc, approvalSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	public := api.Group("")
	public.Use(middleware.OptionalJWT(authSvc))
	public.GET("/events", eventHandler.List)
	public.GET("/events/:id", eventHandler.Get)
	public.GET("/events/:id/availability", registrationHandler.Availability)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.PUT("/auth/password", authHandler.ChangePassword)

	organizers := middleware.RequireRoles(models.RoleOrganizer, models.RoleAdmin)
	reviewers := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleOrganizer, models.RoleFaculty, models.RoleAdmin)

	secured.POST("/events", organizers, eventHandler.Create)
	secured.PUT("/events/:id", organizers, eventHandler.Update)
	secured.DELETE("/events/:id", organizers, eventHandler.Cancel)
	secured.POST("/events/:id/submit", organizers, eventHandler.Submit)
	secured.GET("/events/:id/approvals", staff, approvalHandler.History)

	secured.GET("/approvals", reviewers, approvalHandler.ListPending)
	secured.POST("/approvals/:eventId", reviewers, approvalHandler.Decide)

	// registration routes are event-keyed: :id is the event ID
	students := middleware.RequireRoles(models.RoleStudent)
	secured.POST("/registrations/:id", students, registrationHandler.Register)
	secured.POST("/events/:id/registrations", students, registrationHandler.Register)
	secured.GET("/registrations", registrationHandler.List)
	secured.GET("/registrations/:id", registrationHandler.Get)
	secured.DELETE("/registrations/:id", registrationHandler.Cancel)

	secured.POST("/events/:id/attendance", staff, attendanceHandler.Mark)
	secured.POST("/events/:id/attendance/validate", staff, attendanceHandler.Validate)
	secured.GET("/events/:id/attendance", staff, attendanceHandler.Roster)
	secured.GET("/events/:id/attendance/export", staff,
		middleware.Audit(userRepo, models.AuditActionRosterExport, "attendance"), attendanceHandler.Export)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
