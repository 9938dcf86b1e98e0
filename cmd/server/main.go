package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"pdfbatch/internal/config"
	"pdfbatch/internal/handlers"
	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/server"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
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
	log.Info("Server starting",
		"storage_type", cfg.Storage.Type,
		"redis_addr", cfg.Redis.Addr,
		"port", cfg.Server.Port,
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

	newProcessor := func() pipeline.Processor {
		return pipeline.NewPageProcessor(log, store)
	}
	pipe := pipeline.New(log, newProcessor, store, statuses, cfg.StatusTTL())

	router := server.NewRouter(server.RouterConfig{
		PushHandler: handlers.NewPushHandler(log, pipe, statuses),
		JobsHandler: handlers.NewJobsHandler(log, statuses, store),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server exited with error", "error", err)
	}
	log.Info("Server stopped")
}
