package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"pdfbatch/internal/config"
	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/queue"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
	"pdfbatch/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath, log)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	log.Info("Worker starting",
		"storage_type", cfg.Storage.Type,
		"queue_type", cfg.Queue.Type,
		"redis_addr", cfg.Redis.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Could not init storage", "error", err)
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer rdb.Close()

	statuses, err := status.NewRedisStore(ctx, rdb, log)
	if err != nil {
		log.Fatal("Could not init status store", "error", err)
	}

	var source queue.Source
	switch cfg.Queue.Type {
	case config.QueueTypeRedis:
		source, err = queue.NewRedisStreamSource(ctx, rdb, cfg.Queue, cfg.ReceiveWait(), cfg.LeaseExtension(), log)
	case config.QueueTypePubSub:
		source, err = queue.NewPubSubSource(ctx, cfg.Queue, cfg.ReceiveWait(), log)
	default:
		log.Fatal("Unknown queue type", "queue_type", cfg.Queue.Type)
	}
	if err != nil {
		log.Fatal("Could not init queue source", "error", err)
	}

	newProcessor := func() pipeline.Processor {
		return pipeline.NewPageProcessor(log, store)
	}
	pipe := pipeline.New(log, newProcessor, store, statuses, cfg.StatusTTL())

	w := worker.New(log, source, pipe, statuses, worker.Options{
		IdleDelay:      cfg.IdleDelay(),
		ErrorBackoff:   cfg.ErrorBackoff(),
		LeasePeriod:    cfg.LeasePeriod(),
		LeaseExtension: cfg.LeaseExtension(),
	})
	w.Run(ctx)
}
