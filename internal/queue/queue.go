package queue

import (
	"context"
	"time"
)

// Delivery is one in-flight message handle. AckID is the opaque token used to
// resolve or extend it; its shape depends on the source backend.
type Delivery struct {
	Payload []byte
	AckID   string
}

// Source is the pull side of the delivery adapter. Receive long-polls for at
// most one message within the configured bounded wait and returns (nil, nil)
// when none arrived. Ack must be called exactly once per delivery, on every
// outcome; after Ack the broker must never redeliver the message.
type Source interface {
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	ExtendLease(ctx context.Context, d *Delivery, extension time.Duration) error
}

// Publisher enqueues one job message and returns the broker's message id.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) (string, error)
}
