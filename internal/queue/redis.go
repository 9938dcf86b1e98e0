package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pdfbatch/internal/config"
	"pdfbatch/internal/platform/logger"
)

const payloadField = "payload"

// RedisStreamSource implements Source on a Redis Stream consumer group. The
// lease is the group's pending-entry idle time: an entry idle for longer than
// the lease duration is reclaimed by whichever consumer polls next, so renewal
// is an XCLAIM that resets the idle clock.
type RedisStreamSource struct {
	log      *logger.Logger
	rdb      *goredis.Client
	stream   string
	group    string
	consumer string
	wait     time.Duration
	lease    time.Duration
}

func NewRedisStreamSource(ctx context.Context, rdb *goredis.Client, cfg config.QueueConfig, wait, lease time.Duration, log *logger.Logger) (*RedisStreamSource, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		host, _ := os.Hostname()
		consumer = fmt.Sprintf("worker-%s-%d", host, os.Getpid())
	}

	// Idempotent; BUSYGROUP just means another worker created it first.
	err := rdb.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}

	serviceLog := log.With("service", "RedisStreamSource")
	serviceLog.Info("Redis stream source initialized",
		"stream", cfg.Stream, "group", cfg.Group, "consumer", consumer)

	return &RedisStreamSource{
		log:      serviceLog,
		rdb:      rdb,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: consumer,
		wait:     wait,
		lease:    lease,
	}, nil
}

func (s *RedisStreamSource) Receive(ctx context.Context) (*Delivery, error) {
	// Abandoned entries first: anything pending past the lease belongs to a
	// consumer that stopped renewing (crash, shutdown mid-job).
	if d, err := s.reclaim(ctx); err != nil {
		return nil, err
	} else if d != nil {
		return d, nil
	}

	streams, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.wait,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read from stream %s: %w", s.stream, err)
	}
	for _, st := range streams {
		for _, msg := range st.Messages {
			return s.toDelivery(msg)
		}
	}
	return nil, nil
}

func (s *RedisStreamSource) reclaim(ctx context.Context) (*Delivery, error) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.lease,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("autoclaim on stream %s: %w", s.stream, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	s.log.Warn("Reclaimed abandoned delivery", "message_id", msgs[0].ID)
	return s.toDelivery(msgs[0])
}

func (s *RedisStreamSource) toDelivery(msg goredis.XMessage) (*Delivery, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		// Malformed entry; drop it so it does not wedge the group.
		s.log.Warn("Stream entry missing payload field, acking and dropping", "message_id", msg.ID)
		_ = s.rdb.XAck(context.Background(), s.stream, s.group, msg.ID).Err()
		_ = s.rdb.XDel(context.Background(), s.stream, msg.ID).Err()
		return nil, nil
	}
	return &Delivery{Payload: []byte(raw), AckID: msg.ID}, nil
}

func (s *RedisStreamSource) Ack(ctx context.Context, d *Delivery) error {
	if err := s.rdb.XAck(ctx, s.stream, s.group, d.AckID).Err(); err != nil {
		return fmt.Errorf("ack message %s: %w", d.AckID, err)
	}
	if err := s.rdb.XDel(ctx, s.stream, d.AckID).Err(); err != nil {
		return fmt.Errorf("delete message %s: %w", d.AckID, err)
	}
	return nil
}

// ExtendLease resets the pending entry's idle time; the extension argument is
// implicit here because the reclaim threshold is fixed per group.
func (s *RedisStreamSource) ExtendLease(ctx context.Context, d *Delivery, _ time.Duration) error {
	ids, err := s.rdb.XClaimJustID(ctx, &goredis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  0,
		Messages: []string{d.AckID},
	}).Result()
	if err != nil {
		return fmt.Errorf("claim message %s: %w", d.AckID, err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("message %s no longer pending", d.AckID)
	}
	return nil
}

// RedisStreamPublisher is the submit side of the same stream.
type RedisStreamPublisher struct {
	log    *logger.Logger
	rdb    *goredis.Client
	stream string
}

func NewRedisStreamPublisher(rdb *goredis.Client, stream string, log *logger.Logger) (*RedisStreamPublisher, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStreamPublisher{
		log:    log.With("service", "RedisStreamPublisher"),
		rdb:    rdb,
		stream: stream,
	}, nil
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	id, err := p.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to stream %s: %w", p.stream, err)
	}
	p.log.Info("Published message", "stream", p.stream, "message_id", id)
	return id, nil
}
