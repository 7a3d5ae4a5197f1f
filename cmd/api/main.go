package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wms-platform/replenishment-service/internal/api/handlers"
	"github.com/wms-platform/replenishment-service/internal/application"
	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/internal/infrastructure/messaging"
	mongoRepo "github.com/wms-platform/replenishment-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/replenishment-service/internal/infrastructure/postgres"
	"github.com/wms-platform/replenishment-service/pkg/cloudevents"
	"github.com/wms-platform/replenishment-service/pkg/idempotency"
	"github.com/wms-platform/replenishment-service/pkg/kafka"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"github.com/wms-platform/replenishment-service/pkg/middleware"
	"github.com/wms-platform/replenishment-service/pkg/mongodb"
	"github.com/wms-platform/replenishment-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/replenishment-service/pkg/outbox/mongodb"
	"github.com/wms-platform/replenishment-service/pkg/tracing"
)

const serviceName = "replenishment-service"

func main() {
	// Setup logger
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	// A missing .env is normal outside local development.
	if err := godotenv.Load(".env"); err == nil {
		logger.Info("Loaded environment from .env")
	}

	logger.Info("Starting replenishment-service API")

	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else {
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))

	// Initialize MongoDB with instrumentation
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB, mongodb.WithInstrumentation(m, logger))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	db := mongoClient.Database()
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	orderRepo := mongoRepo.NewReplenishmentRepository(db)
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	processedRepo := idempotency.NewMongoMessageRepository(db)

	indexCtx, cancelIndexes := context.WithTimeout(ctx, 30*time.Second)
	for name, ensure := range map[string]func(context.Context) error{
		"replenishment_orders": orderRepo.EnsureIndexes,
		"outbox_events":        outboxRepo.EnsureIndexes,
		"processed_messages":   processedRepo.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			logger.WithError(err).Warn("Failed to ensure indexes", "collection", name)
		}
	}

	// Stock backend
	readiness := map[string]func(context.Context) error{
		"mongodb": mongoClient.HealthCheck,
	}
	var stockRepo domain.StockRepository
	switch config.StockBackend {
	case "postgres":
		gormDB, err := gorm.Open(postgresdriver.Open(config.PostgresDSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			logger.WithError(err).Error("Failed to connect to PostgreSQL")
			os.Exit(1)
		}
		pgStock := postgres.NewGormStockRepository(gormDB)
		if err := pgStock.Migrate(indexCtx); err != nil {
			logger.WithError(err).Error("Failed to migrate stock tables")
			os.Exit(1)
		}
		readiness["postgres"] = func(ctx context.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
		stockRepo = pgStock
	default:
		mongoStock := mongoRepo.NewStockRepository(db)
		if err := mongoStock.EnsureIndexes(indexCtx); err != nil {
			logger.WithError(err).Warn("Failed to ensure indexes", "collection", "warehouse_stock")
		}
		stockRepo = mongoStock
	}
	cancelIndexes()
	logger.Info("Stock store initialized", "backend", config.StockBackend)

	// Kafka producer: instrumented, then guarded by the circuit breaker
	kafkaProducer := kafka.NewProducer(config.Kafka)
	instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
	producer := kafka.NewCircuitBreakerProducer(instrumentedProducer, m, logger)
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	eventFactory := cloudevents.NewEventFactory("/" + serviceName)

	// Event gateway
	consumer := kafka.NewConsumer(config.Kafka, logger)
	kafkaGateway := messaging.NewKafkaGateway(producer, consumer, eventFactory, processedRepo, logger, m)

	var events domain.EventGateway = kafkaGateway
	var outboxPublisher *outbox.Publisher
	if config.EventDelivery != "direct" {
		events = messaging.NewOutboxGateway(outboxRepo, eventFactory, kafkaGateway, logger)
		outboxPublisher = outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: 1 * time.Second,
			BatchSize:    100,
		})
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		logger.Info("Outbox publisher started")
	}
	logger.Info("Event gateway initialized", "delivery", config.EventDelivery)

	// Services
	inventoryService := application.NewInventoryService(stockRepo, config.DefaultWarehouseID, logger, m)
	orchestrator := application.NewLifecycleOrchestrator(orderRepo, inventoryService, events, logger, m, application.OrchestratorConfig{
		DefaultCarrier: config.DefaultCarrier,
		LeaseTTL:       config.TransitionLease,
	})

	// Alert consumer
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	if config.AutoAllocate {
		alertConsumer := application.NewAlertConsumer(orchestrator, logger)
		if err := events.Subscribe(config.Kafka.ConsumerGroup, []string{kafka.Topics.LowStockAlerts}, alertConsumer.Handle); err != nil {
			logger.WithError(err).Error("Failed to subscribe alert consumer")
			os.Exit(1)
		}
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Alert consumer stopped")
			}
		}()
		logger.Info("Alert consumer started", "group", config.Kafka.ConsumerGroup)
	} else {
		close(consumerDone)
		logger.Info("Automatic allocation disabled")
	}

	// Restock sweeper
	sweeper := application.NewRestockSweeper(orchestrator, config.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.WithError(err).Error("Failed to start restock sweeper", "schedule", config.SweepSchedule)
		os.Exit(1)
	}

	// Setup Gin router with middleware
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger, m))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	handlers.NewReplenishmentHandler(orchestrator, logger).RegisterRoutes(v1)
	handlers.NewStockHandler(inventoryService, sweeper, logger).RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	cancelConsumer()
	<-consumerDone
	if err := consumer.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close Kafka consumer")
	}

	if outboxPublisher != nil {
		if err := outboxPublisher.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop outbox publisher")
		}
	}

	sweeper.Stop()

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close Kafka producer")
	}

	if err := mongoClient.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to disconnect MongoDB")
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown tracer")
		}
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	Environment        string
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
	StockBackend       string
	PostgresDSN        string
	EventDelivery      string
	DefaultWarehouseID string
	DefaultCarrier     string
	AutoAllocate       bool
	SweepSchedule      string
	TransitionLease    time.Duration
}

func loadConfig() *Config {
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", "replenishment-lowstock-group")
	kafkaConfig.ClientID = serviceName
	if username := os.Getenv("KAFKA_SASL_USERNAME"); username != "" {
		kafkaConfig.SASLEnabled = true
		kafkaConfig.SASLUsername = username
		kafkaConfig.SASLPassword = os.Getenv("KAFKA_SASL_PASSWORD")
		kafkaConfig.TLSEnabled = true
	}
	if getEnv("KAFKA_TLS", "") == "true" {
		kafkaConfig.TLSEnabled = true
	}

	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "replenishment_db")
	mongoConfig.MaxPoolSize = uint64(getEnvInt("MONGODB_MAX_POOL_SIZE", 100))

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		MongoDB:            mongoConfig,
		Kafka:              kafkaConfig,
		StockBackend:       getEnv("STOCK_BACKEND", "mongodb"),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		EventDelivery:      getEnv("EVENT_DELIVERY", "outbox"),
		DefaultWarehouseID: getEnv("DEFAULT_WAREHOUSE_ID", "WH1"),
		DefaultCarrier:     getEnv("DEFAULT_CARRIER", "DefaultCarrier"),
		AutoAllocate:       getEnv("AUTO_ALLOCATE", "true") == "true",
		SweepSchedule:      sweepSchedule(),
		TransitionLease:    getEnvDuration("TRANSITION_LEASE", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// sweepSchedule keeps an explicitly empty RESTOCK_SWEEP_SCHEDULE, which disables the cron.
func sweepSchedule() string {
	if value, ok := os.LookupEnv("RESTOCK_SWEEP_SCHEDULE"); ok {
		return strings.TrimSpace(value)
	}
	return "@every 1m"
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
