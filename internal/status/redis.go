package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pdfbatch/internal/platform/logger"
)

const keyPrefix = "job:"

type redisStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisStore(ctx context.Context, rdb *goredis.Client, log *logger.Logger) (Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisStore{log: log.With("service", "RedisStatusStore"), rdb: rdb}, nil
}

func (s *redisStore) Put(ctx context.Context, jobID string, st JobStatus, ttl time.Duration) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status for job %s: %w", jobID, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+jobID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("write status for job %s: %w", jobID, err)
	}
	s.log.Debug("Status updated", "job_id", jobID, "status", st.State, "progress", st.Progress)
	return nil
}

func (s *redisStore) Get(ctx context.Context, jobID string) (*JobStatus, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status for job %s: %w", jobID, err)
	}
	var st JobStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status for job %s: %w", jobID, err)
	}
	return &st, nil
}

func (s *redisStore) Scan(ctx context.Context) ([]Entry, error) {
	var (
		entries []Entry
		cursor  uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan status keys: %w", err)
		}
		for _, key := range keys {
			raw, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil {
				// Key may have expired between SCAN and GET.
				if errors.Is(err, goredis.Nil) {
					continue
				}
				return nil, fmt.Errorf("read status key %s: %w", key, err)
			}
			var st JobStatus
			if err := json.Unmarshal(raw, &st); err != nil {
				s.log.Warn("Skipping undecodable status record", "key", key, "error", err)
				continue
			}
			entries = append(entries, Entry{
				JobID:  strings.TrimPrefix(key, keyPrefix),
				Status: st,
			})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return entries, nil
}
