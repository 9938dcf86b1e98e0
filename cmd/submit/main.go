package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pdfbatch/internal/config"
	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/queue"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
)

// submit uploads one input file, writes the initial pending status, and
// publishes the job message. It is the command-line stand-in for the
// interactive front-end's upload flow.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	filePath := flag.String("file", "", "path to the PDF file to submit")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: submit -file <path-to-pdf> [-config <path>]")
		os.Exit(2)
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	var publisher queue.Publisher
	switch cfg.Queue.Type {
	case config.QueueTypeRedis:
		publisher, err = queue.NewRedisStreamPublisher(rdb, cfg.Queue.Stream, log)
	case config.QueueTypePubSub:
		publisher, err = queue.NewPubSubPublisher(ctx, cfg.Queue, log)
	default:
		log.Fatal("Unknown queue type", "queue_type", cfg.Queue.Type)
	}
	if err != nil {
		log.Fatal("Could not init publisher", "error", err)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal("Could not read input file", "file", *filePath, "error", err)
	}

	jobID := uuid.NewString()
	uploadPath := fmt.Sprintf("uploads/%s/%s", jobID, filepath.Base(*filePath))
	if _, err := store.Put(ctx, data, uploadPath); err != nil {
		log.Fatal("Upload failed", "path", uploadPath, "error", err)
	}
	log.Info("File uploaded", "path", uploadPath, "bytes", len(data))

	if err := statuses.Put(ctx, jobID, status.JobStatus{
		State:     status.StatePending,
		Progress:  0,
		Message:   "Job queued",
		UpdatedAt: time.Now().UTC(),
	}, cfg.StatusTTL()); err != nil {
		log.Warn("Could not write pending status", "error", err)
	}

	payload, err := json.Marshal(pipeline.Job{
		JobID:      jobID,
		PDFPath:    uploadPath,
		BucketName: cfg.Storage.Bucket,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Fatal("Could not marshal job message", "error", err)
	}

	msgID, err := publisher.Publish(ctx, payload)
	if err != nil {
		log.Fatal("Publish failed", "error", err)
	}
	log.Info("Job submitted", "job_id", jobID, "message_id", msgID)
	fmt.Println(jobID)
}
