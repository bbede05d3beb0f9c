package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync-service/internal/auth"
	"chat-sync-service/internal/cache"
	"chat-sync-service/internal/db"
	"chat-sync-service/internal/handlers"
	"chat-sync-service/internal/lifecycle"
	"chat-sync-service/internal/middleware"
	"chat-sync-service/internal/notify"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/presence"
	"chat-sync-service/internal/rabbitmq"
	"chat-sync-service/internal/repositories"
	"chat-sync-service/internal/resolver"
	"chat-sync-service/internal/telemetry"
	"chat-sync-service/internal/ws"
)

const serviceName = "chat-sync-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	environment := getEnv("ENVIRONMENT", "development")

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, environment, getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Presence and the membership cache degrade per call; the service
		// still serves connections without Redis.
		log.Printf("redis unreachable, presence degraded: %v", err)
	}
	defer rdb.Close()

	amqpURL := getEnv("AMQP_URL", "")

	eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "telemetry"))
	if err != nil {
		log.Printf("telemetry publisher disabled: %v", err)
	} else {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	}

	notifyPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("NOTIFY_EXCHANGE", "notifications"))
	defer notifyPublisher.Close()
	log.Printf("notification publisher mode=%s", rabbitmq.PublisherMode(notifyPublisher))

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "telemetry"))
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", serviceName, environment)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	presenceStore := presence.NewRedisStore(rdb)
	membershipCache := cache.NewRedisMembership(rdb)
	verifier := auth.NewJWTVerifier(getEnv("JWT_SECRET", "dev-secret"))

	hub := ws.NewHub()
	convResolver := resolver.New(conversationRepo, userRepo)
	notifier := notify.NewAMQPSink(notifyPublisher)

	messageHandler := handlers.NewMessageHandler(
		convResolver, messageRepo, conversationRepo, userRepo,
		presenceStore, notifier, hub, auditEmitter,
	)
	signalHandler := handlers.NewSignalHandler(conversationRepo, membershipCache, hub)
	gateway := ws.NewGateway(hub, verifier, presenceStore, messageHandler, signalHandler)

	bridge := lifecycle.NewBridge(messageRepo, conversationRepo, userRepo, membershipCache, hub)
	if amqpURL != "" {
		consumer, err := rabbitmq.NewConsumer(amqpURL, getEnv("LIFECYCLE_EXCHANGE", "group-lifecycle"), getEnv("LIFECYCLE_QUEUE", "chat-sync.lifecycle"))
		if err != nil {
			log.Fatalf("failed to start lifecycle consumer: %v", err)
		}
		defer consumer.Close()
		if err := consumer.Start(ctx, bridge.HandleEvent); err != nil {
			log.Fatalf("failed to consume lifecycle events: %v", err)
		}
	} else {
		log.Printf("lifecycle consumer disabled: empty amqp url")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/ws", gateway.Handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	debug := router.Group("/", middleware.AuthMiddleware(verifier))
	handlers.RegisterDebugRoutes(debug, auditEmitter, presenceStore, environment != "production")

	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8083"),
		Handler: router,
	}

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
