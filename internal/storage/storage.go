package storage

import (
	"context"
	"errors"
	"fmt"

	"pdfbatch/internal/config"
	"pdfbatch/internal/platform/logger"
)

// ErrNotFound is returned by Get when no object exists at the given path.
var ErrNotFound = errors.New("object not found")

// Store is the artifact store shared by the submitter and the workers. Paths
// are logical keys: uploads/<job_id>/<name> for inputs and
// results/<job_id>/result.json for outputs. Put at an existing path replaces
// the object.
type Store interface {
	Put(ctx context.Context, data []byte, path string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// New selects the backend once from config; local and GCS are never mixed
// within one process.
func New(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	switch cfg.Type {
	case config.StorageTypeLocal:
		return NewLocalStore(cfg.LocalPath, log)
	case config.StorageTypeGCS:
		return NewGCSStore(ctx, cfg.Bucket, log)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
