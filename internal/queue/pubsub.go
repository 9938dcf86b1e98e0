package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pdfbatch/internal/config"
	"pdfbatch/internal/platform/logger"
)

// PubSubSource pulls from a Cloud Pub/Sub subscription through the low-level
// subscriber API. The high-level client manages ack deadlines on its own;
// this worker owns the lease explicitly, so it uses Pull/ModifyAckDeadline/
// Acknowledge directly.
type PubSubSource struct {
	log          *logger.Logger
	client       *pubsub.SubscriberClient
	subscription string
	wait         time.Duration
}

func NewPubSubSource(ctx context.Context, cfg config.QueueConfig, wait time.Duration, log *logger.Logger) (*PubSubSource, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP project id required")
	}
	client, err := pubsub.NewSubscriberClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create subscriber client: %w", err)
	}
	subscription := fmt.Sprintf("projects/%s/subscriptions/%s", cfg.ProjectID, cfg.Subscription)
	serviceLog := log.With("service", "PubSubSource")
	serviceLog.Info("Pub/Sub source initialized", "subscription", subscription)
	return &PubSubSource{
		log:          serviceLog,
		client:       client,
		subscription: subscription,
		wait:         wait,
	}, nil
}

func (s *PubSubSource) Receive(ctx context.Context) (*Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	resp, err := s.client.Pull(ctx, &pubsubpb.PullRequest{
		Subscription: s.subscription,
		MaxMessages:  1,
	})
	if err != nil {
		// An empty subscription surfaces as a deadline expiry on the
		// bounded pull, not as a failure.
		if status.Code(err) == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("pull from %s: %w", s.subscription, err)
	}
	if len(resp.ReceivedMessages) == 0 {
		return nil, nil
	}
	m := resp.ReceivedMessages[0]
	return &Delivery{Payload: m.Message.GetData(), AckID: m.AckId}, nil
}

func (s *PubSubSource) Ack(ctx context.Context, d *Delivery) error {
	if err := s.client.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: s.subscription,
		AckIds:       []string{d.AckID},
	}); err != nil {
		return fmt.Errorf("acknowledge message: %w", err)
	}
	return nil
}

func (s *PubSubSource) ExtendLease(ctx context.Context, d *Delivery, extension time.Duration) error {
	if err := s.client.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       s.subscription,
		AckIds:             []string{d.AckID},
		AckDeadlineSeconds: int32(extension / time.Second),
	}); err != nil {
		return fmt.Errorf("modify ack deadline: %w", err)
	}
	return nil
}

func (s *PubSubSource) Close() error {
	return s.client.Close()
}

// PubSubPublisher publishes job messages to the configured topic.
type PubSubPublisher struct {
	log    *logger.Logger
	client *pubsub.PublisherClient
	topic  string
}

func NewPubSubPublisher(ctx context.Context, cfg config.QueueConfig, log *logger.Logger) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GCP project id required")
	}
	client, err := pubsub.NewPublisherClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create publisher client: %w", err)
	}
	topic := fmt.Sprintf("projects/%s/topics/%s", cfg.ProjectID, cfg.Topic)
	serviceLog := log.With("service", "PubSubPublisher")
	serviceLog.Info("Pub/Sub publisher initialized", "topic", topic)
	return &PubSubPublisher{log: serviceLog, client: client, topic: topic}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	resp, err := p.client.Publish(ctx, &pubsubpb.PublishRequest{
		Topic:    p.topic,
		Messages: []*pubsubpb.PubsubMessage{{Data: payload}},
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	if len(resp.MessageIds) == 0 {
		return "", fmt.Errorf("publish to %s returned no message id", p.topic)
	}
	p.log.Info("Published message", "topic", p.topic, "message_id", resp.MessageIds[0])
	return resp.MessageIds[0], nil
}

func (p *PubSubPublisher) Close() error {
	return p.client.Close()
}
