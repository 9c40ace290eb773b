package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonasDEMA/agentify-os/internal/application/orchestrator"
	"github.com/JonasDEMA/agentify-os/internal/application/workers"
	"github.com/JonasDEMA/agentify-os/internal/config"
	queuememory "github.com/JonasDEMA/agentify-os/pkg/adapters/queue/memory"
	queueredis "github.com/JonasDEMA/agentify-os/pkg/adapters/queue/redis"
	registrymemory "github.com/JonasDEMA/agentify-os/pkg/adapters/registry/memory"
	registryredis "github.com/JonasDEMA/agentify-os/pkg/adapters/registry/redis"
	"github.com/JonasDEMA/agentify-os/pkg/adapters/metrics/prometheus"
	storagememory "github.com/JonasDEMA/agentify-os/pkg/adapters/storage/memory"
	storageredis "github.com/JonasDEMA/agentify-os/pkg/adapters/storage/redis"
	transportmemory "github.com/JonasDEMA/agentify-os/pkg/adapters/transport/memory"
	transportrabbitmq "github.com/JonasDEMA/agentify-os/pkg/adapters/transport/rabbitmq"
	transportredis "github.com/JonasDEMA/agentify-os/pkg/adapters/transport/redis"
	"github.com/JonasDEMA/agentify-os/pkg/api/grpc"
	"github.com/JonasDEMA/agentify-os/pkg/api/http"
	"github.com/JonasDEMA/agentify-os/pkg/api/websocket"
	"github.com/JonasDEMA/agentify-os/pkg/domain"
	"github.com/JonasDEMA/agentify-os/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting Agentify orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("storage", cfg.Storage),
		zap.String("transport", cfg.Transport))

	ctx := context.Background()

	// Initialize Redis client when any backend needs it
	var redisClient *goredis.Client
	if cfg.Storage == config.BackendRedis || cfg.Transport == config.BackendRedis {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize storage, queue, and registry
	var (
		jobStore ports.JobStore
		jobQueue ports.JobQueue
		registry ports.AgentRegistry
	)
	switch cfg.Storage {
	case config.BackendRedis:
		jobStore = storageredis.NewJobStore(redisClient, cfg.Orchestrator.JobTTL, logger)
		jobQueue = queueredis.NewJobQueue(redisClient, jobStore, queueredis.Config{
			BlockWait: cfg.Orchestrator.QueueBlockWait,
		}, logger)
		registry = registryredis.NewRegistry(redisClient, cfg.Orchestrator.AgentHeartbeatTTL, logger)
	default:
		jobStore = storagememory.NewJobStore()
		jobQueue = queuememory.NewJobQueue(jobStore, 0)
		registry = registrymemory.NewRegistry(cfg.Orchestrator.AgentHeartbeatTTL)
	}

	// Initialize the message bus
	var bus ports.MessageBus
	switch cfg.Transport {
	case config.BackendRedis:
		streamsBus, err := transportredis.NewStreamsBus(
			redisClient,
			"agentify-orchestrator",
			fmt.Sprintf("agentify-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create message bus", zap.Error(err))
		}
		bus = streamsBus
	case config.BackendRabbitMQ:
		rabbitBus, err := transportrabbitmq.NewBus(transportrabbitmq.Config{
			URL:      cfg.RabbitMQ.URL,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		bus = rabbitBus
	default:
		bus = transportmemory.NewBus()
	}

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	validator := orchestrator.NewValidator()
	tracker := orchestrator.NewTracker()
	correlator := orchestrator.NewCorrelator()

	orchestratorMgr := orchestrator.NewManager(
		jobStore,
		jobQueue,
		registry,
		validator,
		tracker,
		metricsCollector,
		logger,
	)

	dispatcher := orchestrator.NewDispatcher(
		jobStore,
		jobQueue,
		bus,
		registry,
		correlator,
		tracker,
		metricsCollector,
		logger,
		cfg.Orchestrator.SenderID,
	)

	listener := orchestrator.NewListener(correlator, metricsCollector, logger)
	if err := listener.Start(ctx, bus); err != nil {
		logger.Fatal("failed to subscribe to reply topic",
			zap.String("topic", domain.ReplyTopic),
			zap.Error(err))
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		jobQueue,
		dispatcher,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Logger:       logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(bus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:         cfg.GRPCPort,
		Orchestrator: orchestratorMgr,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("Agentify orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Shutdown components in reverse order
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := bus.Close(); err != nil {
		logger.Error("message bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("Agentify orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
