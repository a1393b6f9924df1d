package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/db"
	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
	"chatrelay/internal/observability"
	"chatrelay/internal/rabbitmq"
	"chatrelay/internal/repositories"
	"chatrelay/internal/telemetry"
	"chatrelay/internal/ws"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.TokenTTL)

	registry := ws.NewRegistry(logger)
	router := ws.NewRouter(messageRepo, groupRepo, registry, logger)
	receipts := ws.NewReceiptTracker(messageRepo, registry, logger)
	reactions := ws.NewReactionManager(messageRepo, groupRepo, registry, logger)
	deletions := ws.NewDeletionPropagator(messageRepo, groupRepo, registry, logger)
	typing := ws.NewTypingRelay(registry)

	wsHandler := ws.NewHandler(registry, verifier, router, receipts, reactions, deletions, typing,
		userRepo, publisher, cfg.WriteBuffer, logger)

	userHandler := handlers.NewUserHandler(userRepo, registry, logger)
	messageHandler := handlers.NewMessageHandler(messageRepo, logger)
	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, publisher, logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("chatrelay"))
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	engine.GET("/ws", wsHandler.Handle)

	authRequired := middleware.AuthMiddleware(verifier)
	api := engine.Group("/api", authRequired)

	api.GET("/users", userHandler.ListUsers)
	api.GET("/users/online", userHandler.ListOnline)
	api.GET("/users/settings", userHandler.GetSettings)
	api.PUT("/users/settings", userHandler.UpdateSettings)
	api.PUT("/users/profile", userHandler.UpdateProfile)

	api.GET("/messages/:user_id", messageHandler.GetDirectHistory)

	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups/my-groups", groupHandler.MyGroups)
	api.GET("/groups/:group_id", groupHandler.GetGroup)
	api.GET("/groups/:group_id/messages", groupHandler.GetGroupMessages)
	api.PUT("/groups/:group_id", groupHandler.UpdateGroup)
	api.POST("/groups/:group_id/members", groupHandler.AddMember)
	api.DELETE("/groups/:group_id/members/:member_id", groupHandler.RemoveMember)
	api.POST("/groups/:group_id/members/:member_id/promote", groupHandler.PromoteMember)
	api.POST("/groups/:group_id/members/:member_id/demote", groupHandler.DemoteMember)
	api.POST("/groups/:group_id/leave", groupHandler.Leave)
	api.DELETE("/groups/:group_id", groupHandler.DeleteGroup)

	handlers.RegisterDebugRoutes(engine, registry, cfg.DebugRoutes)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}
