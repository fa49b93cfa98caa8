package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-frontend/config"
	"catalog-frontend/internal/api"
	"catalog-frontend/internal/apiclient"
	"catalog-frontend/internal/broker"
	"catalog-frontend/internal/query"
	"catalog-frontend/internal/redisclient"
	"catalog-frontend/internal/service"
	"catalog-frontend/internal/store"
	"catalog-frontend/internal/util"
	"catalog-frontend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog front end", zap.String("api", cfg.API.BaseURL))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	instanceID := uuid.New().String()
	deps := service.Deps{
		API: apiclient.NewClient(cfg.API.BaseURL, cfg.API.Timeout),
		Cache: query.NewClient(query.Options{
			StaleTime: cfg.Cache.StaleTime,
			GCTime:    cfg.Cache.GCTime,
		}),
		InstanceID: instanceID,
	}
	var handlerOpts []api.Option

	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("Failed to prepare failure journal", zap.Error(err))
		}
		deps.Failures = db
		handlerOpts = append(handlerOpts,
			api.WithFailureJournal(db),
			api.WithReadinessCheck("postgres", db.Ping))
		logger.Info("Failure journal enabled")
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		deps.Locker = redisClient
		handlerOpts = append(handlerOpts, api.WithReadinessCheck("redis", redisClient.Ping))
		logger.Info("Redis submission guard enabled")
	}

	var producer *broker.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
		defer producer.Close()
		deps.Events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	catalogService := service.NewCatalogService(deps)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go deps.Cache.RunJanitor(workerCtx, cfg.Cache.JanitorInterval)

	var invalidationWorker *worker.InvalidationWorker
	if producer != nil {
		group := cfg.Kafka.ConsumerGroup
		if group == "" {
			group = fmt.Sprintf("%s-%s", util.ServiceName, instanceID)
		}
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, group)
		invalidationWorker = worker.NewInvalidationWorker(consumer, catalogService)
		go func() {
			if err := invalidationWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Invalidation worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(catalogService, handlerOpts...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if invalidationWorker != nil {
		if err := invalidationWorker.Stop(); err != nil {
			logger.Warn("Error stopping invalidation worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
