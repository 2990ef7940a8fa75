package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aro-via/routing-maps/internal/audit"
	"github.com/aro-via/routing-maps/internal/config"
	"github.com/aro-via/routing-maps/internal/driverstate"
	"github.com/aro-via/routing-maps/internal/httpapi"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/matrixcache"
	"github.com/aro-via/routing-maps/internal/pipeline"
	"github.com/aro-via/routing-maps/internal/pubsub"
	"github.com/aro-via/routing-maps/internal/queue"
	"github.com/aro-via/routing-maps/internal/session"
	"github.com/aro-via/routing-maps/internal/trigger"
	"github.com/aro-via/routing-maps/internal/worker"
)

func main() {
	log, err := logger.New("info", "json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting routing-maps")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if cfgLog, err := logger.New(cfg.Log.Level, cfg.Log.Format); err == nil {
		log = cfgLog
		defer log.Sync()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to redis")

	cache := matrixcache.NewRedisCache(redisClient)
	provider, err := matrixcache.NewGoogleProvider(cfg.Maps.APIKey)
	if err != nil {
		log.WithError(err).Fatal("failed to build maps provider")
	}
	matrixStore := matrixcache.NewStore(cache, provider, cfg.Redis.MatrixCacheTTL, log)

	orchestrator := pipeline.NewOrchestrator(matrixStore, cfg.Solver.Budget, log)

	states := driverstate.NewStore(redisClient, cfg.Redis.DriverStateTTL, cfg.Redis.LastGPSTTL, log)
	rerouteChannel := pubsub.NewPublisher(redisClient, log)

	var auditPub *audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		auditPub = audit.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer auditPub.Close()
	}

	triggerCfg := trigger.Config{
		DelayThresholdMinutes: cfg.Trigger.DelayThresholdMinutes,
		TrafficIncreaseRatio:  cfg.Trigger.TrafficIncreaseRatio,
		MinRerouteInterval:    cfg.Trigger.MinRerouteInterval,
	}

	gpsWorker := worker.NewGPSWorker(states, orchestrator, rerouteChannel, auditPub, triggerCfg, log)
	dispatcher := queue.NewDispatcher(redisClient, cfg.Redis.QueueShardCount, cfg.Redis.ConsumerGroup, log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	dispatcher.Run(workerCtx, gpsWorker.Handle)
	log.Infow("gps work queue started", "shards", cfg.Redis.QueueShardCount)

	registry := session.NewRegistry(redisClient, states, dispatcher, auditPub, log)

	api := httpapi.NewHandler(orchestrator, cache, cfg.Solver.MaxStops, cfg.Maps.APIKey, auditPub, log)
	router := api.Router()
	router.HandleFunc("/ws/driver/{driver_id}", registry.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // long enough for a held WS upgrade
	}

	go func() {
		log.Infow("http server listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down routing-maps")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelWorkers()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}

	log.Info("routing-maps stopped")
}
