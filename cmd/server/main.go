package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumenfeed/backend/internal/auth"
	"github.com/lumenfeed/backend/internal/cache"
	"github.com/lumenfeed/backend/internal/config"
	"github.com/lumenfeed/backend/internal/database"
	"github.com/lumenfeed/backend/internal/gateway"
	"github.com/lumenfeed/backend/internal/handlers"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/repository"
)

func main() {
	cfg := config.Load()

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()

	logger.Log.Info("lumenfeed realtime backend starting",
		zap.String("environment", cfg.Environment),
		zap.String("listen_addr", cfg.ListenAddr))

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Profile cache is optional; the notifier falls back to the database.
	var profiles *cache.ProfileCache
	if cfg.RedisAddr != "" {
		var err error
		profiles, err = cache.NewProfileCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Log.Warn("redis unavailable, profile cache disabled", zap.Error(err))
			profiles = nil
		} else {
			defer profiles.Close()
		}
	}

	users := repository.NewUserRepository(database.DB)
	conversations := repository.NewConversationRepository(database.DB)
	messages := repository.NewMessageRepository(database.DB)
	notifications := repository.NewNotificationRepository(database.DB)

	authService := auth.NewService([]byte(cfg.JWTSecret))

	hub := gateway.NewHub()
	hub.Metrics().EnablePrometheus()
	presence := gateway.NewRegistry()
	notifier := gateway.NewNotifier(hub, presence, notifications, users, profiles)
	gatewayService := gateway.NewService(hub, presence, notifier, authService, users, conversations, messages)
	gatewayHandler := gateway.NewHandler(hub, gatewayService)

	h := handlers.New(authService, gatewayService, users, conversations, messages, notifications)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "lumenfeed-realtime",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		// WebSocket connection endpoint - identity arrives as an
		// authenticate event after the upgrade
		ws := api.Group("/ws")
		{
			ws.GET("", gatewayHandler.HandleSocket)
			ws.GET("/connect", gatewayHandler.HandleSocket)
		}

		notificationsGroup := api.Group("/notifications")
		{
			notificationsGroup.Use(h.AuthMiddleware())
			notificationsGroup.GET("", h.GetNotifications)
			notificationsGroup.PUT("/:id/read", h.MarkNotificationRead)
			notificationsGroup.PUT("/read-all", h.MarkAllNotificationsRead)
			notificationsGroup.DELETE("/:id", h.DeleteNotification)
			notificationsGroup.DELETE("", h.DeleteAllNotifications)
		}

		conversationsGroup := api.Group("/conversations")
		{
			conversationsGroup.Use(h.AuthMiddleware())
			conversationsGroup.POST("", h.CreateConversation)
			conversationsGroup.GET("", h.GetConversations)
			conversationsGroup.GET("/:id/messages", h.GetConversationMessages)
			conversationsGroup.POST("/:id/messages", h.SendMessage)
			conversationsGroup.POST("/:id/read", h.MarkConversationRead)
		}

		usersGroup := api.Group("/users")
		{
			usersGroup.Use(h.AuthMiddleware())
			usersGroup.POST("/:id/follow", h.FollowUser)
			usersGroup.POST("/:id/unfollow", h.UnfollowUser)
			usersGroup.POST("/:id/cancel-request", h.CancelFollowRequest)
			usersGroup.POST("/:id/accept-follow", h.AcceptFollowRequest)
		}

		// Admin surface used by the ops CLI
		admin := api.Group("/admin")
		{
			admin.Use(h.AuthMiddleware())
			admin.GET("/online", gatewayHandler.HandleOnlineUsers)
			admin.POST("/online-status", gatewayHandler.HandleOnlineStatus)
			admin.POST("/notify", gatewayHandler.HandleTestNotify)
		}
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		logger.Log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gatewayHandler.Shutdown(ctx); err != nil {
		logger.Log.Warn("gateway shutdown", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("server exited")
}
