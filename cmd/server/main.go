package main

import (
	"context"
	"errors"
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

	_ "github.com/noah-isme/campus-board-api/api/swagger"
	"github.com/noah-isme/campus-board-api/internal/feed"
	"github.com/noah-isme/campus-board-api/internal/handler"
	"github.com/noah-isme/campus-board-api/internal/middleware"
	"github.com/noah-isme/campus-board-api/internal/models"
	"github.com/noah-isme/campus-board-api/internal/repository"
	"github.com/noah-isme/campus-board-api/internal/service"
	"github.com/noah-isme/campus-board-api/pkg/cache"
	"github.com/noah-isme/campus-board-api/pkg/config"
	"github.com/noah-isme/campus-board-api/pkg/database"
	"github.com/noah-isme/campus-board-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-board-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-board-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-board-api/pkg/storage"
)

// @title Campus Board API
// @version 1.0.0
// @description Role-based college notice board with a live feed
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable; caching and cross-instance feed disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init uploads storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	noticeRepo := repository.NewNoticeRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	hub := feed.NewHub(noticeRepo, logr)
	go hub.Run(ctx)
	if redisClient != nil {
		go hub.Listen(ctx, redisClient, cfg.Feed.Channel)
	}
	publisher := feed.NewPublisher(hub, redisClient, cfg.Feed.Channel, logr)

	validate := validator.New()
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenExpiry:   cfg.JWT.ResetExpiration,
		Issuer:             "campus-board-api",
	})
	noticeService := service.NewNoticeService(noticeRepo, cacheRepo, publisher, store, signer, userRepo, validate, logr, cfg.Stats.CacheTTL)
	userService := service.NewUserService(userRepo, validate, logr)
	metricsService := service.NewMetricsService(hub.SubscriberCount)
	noticeService.SetMetrics(metricsService)

	var cleanup *service.CleanupService
	if cfg.Uploads.CleanupEnabled {
		cleanup = service.NewCleanupService(noticeRepo, store, logr, cfg.Uploads.CleanupInterval, cfg.Uploads.CleanupMinAge)
		cleanup.Start(ctx)
		defer cleanup.Stop()
	}

	authHandler := handler.NewAuthHandler(authService)
	noticeHandler := handler.NewNoticeHandler(noticeService, cfg.Uploads.MaxFileSizeBytes)
	feedHandler := handler.NewFeedHandler(hub, cfg.Feed.KeepAlive, cfg.Feed.SubscriberQueue, logr)
	userHandler := handler.NewUserHandler(userService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	notices := api.Group("/notices")
	{
		notices.GET("", middleware.OptionalJWT(authService), noticeHandler.List)
		notices.GET("/stats", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), noticeHandler.Stats)
		notices.GET("/export", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), noticeHandler.Export)
		notices.GET("/:id", middleware.OptionalJWT(authService), noticeHandler.Get)
		notices.GET("/:id/attachment", middleware.OptionalJWT(authService), noticeHandler.AttachmentLink)
		notices.POST("", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), noticeHandler.Create)
		notices.PUT("/:id", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), noticeHandler.Update)
		notices.DELETE("/:id", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), noticeHandler.Delete)
	}

	api.GET("/feed", middleware.OptionalJWT(authService), feedHandler.Stream)
	r.GET("/attachments/:token", noticeHandler.DownloadAttachment)

	users := api.Group("/users", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id/role", userHandler.ChangeRole)
		users.DELETE("/:id", userHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
