package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pdfbatch/internal/platform/envutil"
	"pdfbatch/internal/platform/logger"
)

const (
	StorageTypeLocal = "local"
	StorageTypeGCS   = "gcs"

	QueueTypeRedis  = "redis"
	QueueTypePubSub = "pubsub"
)

type StorageConfig struct {
	Type      string `yaml:"type"`
	LocalPath string `yaml:"local_path"`
	Bucket    string `yaml:"bucket"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type QueueConfig struct {
	Type         string `yaml:"type"`
	Stream       string `yaml:"stream"`
	Group        string `yaml:"group"`
	Consumer     string `yaml:"consumer"`
	ProjectID    string `yaml:"project_id"`
	Topic        string `yaml:"topic"`
	Subscription string `yaml:"subscription"`
}

type StatusConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

type WorkerConfig struct {
	ReceiveWaitSeconds    int `yaml:"receive_wait_seconds"`
	IdleDelaySeconds      int `yaml:"idle_delay_seconds"`
	ErrorBackoffSeconds   int `yaml:"error_backoff_seconds"`
	LeasePeriodSeconds    int `yaml:"lease_period_seconds"`
	LeaseExtensionSeconds int `yaml:"lease_extension_seconds"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	LogMode string        `yaml:"log_mode"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
	Status  StatusConfig  `yaml:"status"`
	Worker  WorkerConfig  `yaml:"worker"`
	Server  ServerConfig  `yaml:"server"`
}

func Default() Config {
	return Config{
		LogMode: "development",
		Storage: StorageConfig{
			Type:      StorageTypeLocal,
			LocalPath: "./local_storage",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			Type:         QueueTypeRedis,
			Stream:       "pdf-processing",
			Group:        "pdf-workers",
			Subscription: "pdf-processing-subscription",
			Topic:        "pdf-processing-topic",
		},
		Status: StatusConfig{TTLSeconds: 86400},
		Worker: WorkerConfig{
			ReceiveWaitSeconds:    10,
			IdleDelaySeconds:      1,
			ErrorBackoffSeconds:   5,
			LeasePeriodSeconds:    300,
			LeaseExtensionSeconds: 600,
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load builds the config in three layers: hardcoded defaults, the optional
// YAML file at path, then environment variable overrides. An empty path (or a
// missing file at the default path) skips the file layer.
func Load(path string, log *logger.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file %s: %w", path, err)
			}
			if log != nil {
				log.Debug("Config file not found, using defaults", "path", path)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv(log)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(log *logger.Logger) {
	c.LogMode = envutil.GetEnv("LOG_MODE", c.LogMode, log)

	c.Storage.Type = envutil.GetEnv("STORAGE_TYPE", c.Storage.Type, log)
	c.Storage.LocalPath = envutil.GetEnv("LOCAL_STORAGE_PATH", c.Storage.LocalPath, log)
	c.Storage.Bucket = envutil.GetEnv("GCS_BUCKET_NAME", c.Storage.Bucket, log)

	c.Redis.Addr = envutil.GetEnv("REDIS_ADDR", c.Redis.Addr, log)
	c.Redis.DB = envutil.GetEnvAsInt("REDIS_DB", c.Redis.DB, log)

	c.Queue.Type = envutil.GetEnv("QUEUE_TYPE", c.Queue.Type, log)
	c.Queue.Stream = envutil.GetEnv("QUEUE_STREAM", c.Queue.Stream, log)
	c.Queue.Group = envutil.GetEnv("QUEUE_GROUP", c.Queue.Group, log)
	c.Queue.Consumer = envutil.GetEnv("QUEUE_CONSUMER", c.Queue.Consumer, log)
	c.Queue.ProjectID = envutil.GetEnv("GCP_PROJECT_ID", c.Queue.ProjectID, log)
	c.Queue.Topic = envutil.GetEnv("PUBSUB_TOPIC", c.Queue.Topic, log)
	c.Queue.Subscription = envutil.GetEnv("PUBSUB_SUBSCRIPTION", c.Queue.Subscription, log)

	c.Status.TTLSeconds = envutil.GetEnvAsInt("STATUS_TTL_SECONDS", c.Status.TTLSeconds, log)

	c.Worker.ReceiveWaitSeconds = envutil.GetEnvAsInt("RECEIVE_WAIT_SECONDS", c.Worker.ReceiveWaitSeconds, log)
	c.Worker.IdleDelaySeconds = envutil.GetEnvAsInt("IDLE_DELAY_SECONDS", c.Worker.IdleDelaySeconds, log)
	c.Worker.ErrorBackoffSeconds = envutil.GetEnvAsInt("ERROR_BACKOFF_SECONDS", c.Worker.ErrorBackoffSeconds, log)
	c.Worker.LeasePeriodSeconds = envutil.GetEnvAsInt("LEASE_PERIOD_SECONDS", c.Worker.LeasePeriodSeconds, log)
	c.Worker.LeaseExtensionSeconds = envutil.GetEnvAsInt("LEASE_EXTENSION_SECONDS", c.Worker.LeaseExtensionSeconds, log)

	c.Server.Port = envutil.GetEnvAsInt("PORT", c.Server.Port, log)
}

func (c Config) Validate() error {
	switch c.Storage.Type {
	case StorageTypeLocal:
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH must be set when STORAGE_TYPE=local")
		}
	case StorageTypeGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("GCS_BUCKET_NAME must be set when STORAGE_TYPE=gcs")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	switch c.Queue.Type {
	case QueueTypeRedis:
		if c.Queue.Stream == "" || c.Queue.Group == "" {
			return fmt.Errorf("queue stream and group must be set when QUEUE_TYPE=redis")
		}
	case QueueTypePubSub:
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID must be set when QUEUE_TYPE=pubsub")
		}
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}

	if c.Status.TTLSeconds <= 0 {
		return fmt.Errorf("status ttl must be positive, got %d", c.Status.TTLSeconds)
	}
	// The renewal period needs margin below the extension it requests so one
	// missed cycle does not let the lease lapse.
	if c.Worker.LeasePeriodSeconds >= c.Worker.LeaseExtensionSeconds {
		return fmt.Errorf("lease period (%ds) must be shorter than lease extension (%ds)",
			c.Worker.LeasePeriodSeconds, c.Worker.LeaseExtensionSeconds)
	}
	return nil
}

func (c Config) StatusTTL() time.Duration {
	return time.Duration(c.Status.TTLSeconds) * time.Second
}

func (c Config) ReceiveWait() time.Duration {
	return time.Duration(c.Worker.ReceiveWaitSeconds) * time.Second
}

func (c Config) IdleDelay() time.Duration {
	return time.Duration(c.Worker.IdleDelaySeconds) * time.Second
}

func (c Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Worker.ErrorBackoffSeconds) * time.Second
}

func (c Config) LeasePeriod() time.Duration {
	return time.Duration(c.Worker.LeasePeriodSeconds) * time.Second
}

func (c Config) LeaseExtension() time.Duration {
	return time.Duration(c.Worker.LeaseExtensionSeconds) * time.Second
}
