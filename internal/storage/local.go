package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdfbatch/internal/platform/logger"
)

type localStore struct {
	log      *logger.Logger
	basePath string
}

func NewLocalStore(basePath string, log *logger.Logger) (Store, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path %q: %w", basePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base path %q: %w", abs, err)
	}
	serviceLog := log.With("service", "LocalStore")
	serviceLog.Info("Local storage initialized", "base_path", abs)
	return &localStore{log: serviceLog, basePath: abs}, nil
}

// resolve maps a logical key to a filesystem path and rejects keys that would
// escape the base directory.
func (s *localStore) resolve(path string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(path))
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return full, nil
}

func (s *localStore) Put(_ context.Context, data []byte, path string) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs for %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	s.log.Debug("File written to local storage", "path", path, "bytes", len(data))
	return path, nil
}

func (s *localStore) Get(_ context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%q: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return data, nil
}
