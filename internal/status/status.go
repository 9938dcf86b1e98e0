package status

import (
	"context"
	"time"
)

type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition may leave this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// JobStatus is the externally observable projection of one job. It is written
// as a single opaque JSON value, so readers never see a torn record, only a
// stale one.
type JobStatus struct {
	State      State     `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	ResultPath string    `json:"result_url"`
	Error      string    `json:"error_msg"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Entry struct {
	JobID  string
	Status JobStatus
}

// Store is the durable status projection, keyed by job id. Every Put re-arms
// the retention TTL from the time of the write. Get returns (nil, nil) for an
// absent or expired record. Scan pages through the whole keyspace and
// tolerates records appearing or disappearing mid-scan.
type Store interface {
	Put(ctx context.Context, jobID string, st JobStatus, ttl time.Duration) error
	Get(ctx context.Context, jobID string) (*JobStatus, error)
	Scan(ctx context.Context) ([]Entry, error)
}
