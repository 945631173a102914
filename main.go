package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"messenger-service/internal/chat"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/directory"
	"messenger-service/internal/handlers"
	"messenger-service/internal/logger"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.Environment); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zap.L().Sync()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		zap.L().Fatal("failed to connect to db", zap.Error(err))
	}

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
		if err != nil {
			zap.L().Fatal("failed to init tracing", zap.Error(err))
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	zap.L().Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))

	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, serviceName, cfg.Environment)

	conversations := store.NewPostgresStore(database)
	registry := presence.NewRegistry()
	router := chat.NewRouter(conversations, registry)
	users := directory.NewHTTPDirectory(cfg.UserServiceURL)

	chatsHandler := handlers.NewChatsHandler(router, users)
	wsHandler := ws.NewHandler(router, users)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery())
	engine.Use(observability.HTTPMetricsMiddleware())
	engine.Use(otelgin.Middleware(serviceName))

	engine.GET("/healthz", handlers.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/chat", wsHandler.Handle)

	api := engine.Group("/api", middleware.IdentityMiddleware())
	api.GET("/chats", chatsHandler.ListChats)
	api.POST("/chats", chatsHandler.MarkRead)
	api.DELETE("/chats/:messagesWith", chatsHandler.DeleteChat)

	handlers.RegisterDebugRoutes(engine, auditEmitter, cfg.DebugRoutes)

	zap.L().Info("messenger service listening", zap.String("port", cfg.Port))
	if err := engine.Run(":" + cfg.Port); err != nil {
		zap.L().Fatal("server error", zap.Error(err))
	}
}
