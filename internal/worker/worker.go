package worker

import (
	"context"
	"fmt"
	"time"

	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/queue"
	"pdfbatch/internal/status"
)

// Worker is the pull-mode composition root: it receives deliveries one at a
// time, keeps the lease alive while the pipeline runs, and resolves every
// delivery exactly once whatever the outcome.
type Worker struct {
	log      *logger.Logger
	source   queue.Source
	pipe     *pipeline.Pipeline
	statuses status.Store

	idleDelay      time.Duration
	errorBackoff   time.Duration
	leasePeriod    time.Duration
	leaseExtension time.Duration
}

type Options struct {
	IdleDelay      time.Duration
	ErrorBackoff   time.Duration
	LeasePeriod    time.Duration
	LeaseExtension time.Duration
}

func New(log *logger.Logger, source queue.Source, pipe *pipeline.Pipeline, statuses status.Store, opts Options) *Worker {
	return &Worker{
		log:            log.With("component", "Worker"),
		source:         source,
		pipe:           pipe,
		statuses:       statuses,
		idleDelay:      opts.IdleDelay,
		errorBackoff:   opts.ErrorBackoff,
		leasePeriod:    opts.LeasePeriod,
		leaseExtension: opts.LeaseExtension,
	}
}

// Run blocks until ctx is done. Errors inside one iteration never exit the
// loop; they are logged and followed by a short backoff.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker stopped")
			return
		default:
		}
		w.pollOnce(ctx)
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	d, err := w.source.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error("Receive failed", "error", err)
		w.sleep(ctx, w.errorBackoff)
		return
	}
	if d == nil {
		w.sleep(ctx, w.idleDelay)
		return
	}
	w.handle(ctx, d)
}

// handle processes one delivery. Deferred resolution runs in LIFO order:
// first the lease extender stops, then the delivery is acknowledged — the ack
// is strictly last on every path, including panics.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Panic while handling delivery", "panic", r)
			w.sleep(ctx, w.errorBackoff)
		}
	}()
	defer w.ack(d)

	extender := queue.NewLeaseExtender(w.log, w.source, d, w.leasePeriod, w.leaseExtension)
	extender.Start()
	defer extender.Stop()

	job, err := pipeline.DecodeJob(d.Payload)
	if err != nil {
		// Never executes a job; drop it so it is not redelivered forever.
		w.log.Warn("Dropping undecodable message", "error", err)
		return
	}

	log := w.log.With("job_id", job.JobID)

	if terminal, err := w.alreadyTerminal(ctx, job.JobID); err != nil {
		log.Warn("Could not check existing status, proceeding", "error", err)
	} else if terminal {
		// Redelivery of a finished job (crash between completion and ack):
		// resolve the delivery without re-running.
		log.Warn("Job already in a terminal state, skipping redelivery")
		return
	}

	log.Info("Processing job", "pdf_path", job.PDFPath)
	// No mid-job cancellation: once accepted, a job runs to a terminal state
	// even while the worker is shutting down. A hard crash leaves the message
	// unacked and redelivery after the lease lapses re-runs it from scratch.
	resultPath, err := w.pipe.Execute(context.WithoutCancel(ctx), job)
	if err != nil {
		log.Warn("Job failed and will not be retried", "error", err)
		return
	}
	log.Info("Job completed", "result_path", resultPath)
}

func (w *Worker) alreadyTerminal(ctx context.Context, jobID string) (bool, error) {
	st, err := w.statuses.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return st != nil && st.State.Terminal(), nil
}

// ack resolves the delivery on a detached context so shutdown or a canceled
// job context cannot leave the message in limbo.
func (w *Worker) ack(d *queue.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.source.Ack(ctx, d); err != nil {
		w.log.Error("Failed to acknowledge delivery", "error", fmt.Errorf("ack: %w", err))
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
