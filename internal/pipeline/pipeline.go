package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
)

// Processor is the pluggable per-job work. Open determines the unit count at
// job start, ProcessUnit runs one sub-step (1-based), Finish produces the
// result payload once every unit completed.
type Processor interface {
	Open(ctx context.Context, job *Job) (units int, err error)
	ProcessUnit(ctx context.Context, job *Job, unit, units int) error
	Finish(ctx context.Context, job *Job) ([]byte, error)
}

// ProcessorFactory builds a fresh Processor per job execution; processors may
// carry per-job state and are never shared across jobs.
type ProcessorFactory func() Processor

// Pipeline runs one job to a terminal state, reporting progress through the
// status store as a side effect. It is the only writer of the status record
// for the job it is executing.
type Pipeline struct {
	log          *logger.Logger
	newProcessor ProcessorFactory
	store        storage.Store
	statuses     status.Store
	ttl          time.Duration
}

func New(log *logger.Logger, newProcessor ProcessorFactory, store storage.Store, statuses status.Store, ttl time.Duration) *Pipeline {
	return &Pipeline{
		log:          log.With("component", "Pipeline"),
		newProcessor: newProcessor,
		store:        store,
		statuses:     statuses,
		ttl:          ttl,
	}
}

// ResultPath is where the produced artifact lands, derived from the job id.
func ResultPath(jobID string) string {
	return fmt.Sprintf("results/%s/result.json", jobID)
}

// Execute runs the job and returns the result artifact path. On failure it
// writes the terminal failed status (keeping the last successful progress
// value) and returns a *ProcessingError; it never retries. The caller remains
// responsible for resolving the delivery.
func (p *Pipeline) Execute(ctx context.Context, job *Job) (string, error) {
	log := p.log.With("job_id", job.JobID)
	started := time.Now()
	lastProgress := 0
	processor := p.newProcessor()

	if err := p.writeStatus(ctx, job.JobID, status.StateProcessing, 0, "Processing started...", "", ""); err != nil {
		return "", p.fail(ctx, log, job, lastProgress, err)
	}

	units, err := processor.Open(ctx, job)
	if err != nil {
		return "", p.fail(ctx, log, job, lastProgress, fmt.Errorf("open: %w", err))
	}
	if units <= 0 {
		return "", p.fail(ctx, log, job, lastProgress, fmt.Errorf("open: invalid unit count %d", units))
	}
	log.Info("Job accepted", "units", units, "pdf_path", job.PDFPath)

	for unit := 1; unit <= units; unit++ {
		if err := processor.ProcessUnit(ctx, job, unit, units); err != nil {
			return "", p.fail(ctx, log, job, lastProgress, fmt.Errorf("unit %d/%d: %w", unit, units, err))
		}
		lastProgress = progressFor(unit, units)
		// The final unit's progress lands on the terminal record itself, so
		// no processing write follows a terminal write.
		if unit < units {
			message := fmt.Sprintf("Page %d/%d analyzing...", unit, units)
			if err := p.writeStatus(ctx, job.JobID, status.StateProcessing, lastProgress, message, "", ""); err != nil {
				return "", p.fail(ctx, log, job, lastProgress, err)
			}
		}
		log.Debug("Unit completed", "unit", unit, "units", units, "progress", lastProgress)
	}

	result, err := processor.Finish(ctx, job)
	if err != nil {
		return "", p.fail(ctx, log, job, lastProgress, fmt.Errorf("finish: %w", err))
	}

	resultPath := ResultPath(job.JobID)
	if _, err := p.store.Put(ctx, result, resultPath); err != nil {
		return "", p.fail(ctx, log, job, lastProgress, fmt.Errorf("write result artifact: %w", err))
	}

	if err := p.writeStatus(ctx, job.JobID, status.StateCompleted, 100, "Processing completed!", resultPath, ""); err != nil {
		return "", p.fail(ctx, log, job, lastProgress, err)
	}

	log.Info("Job completed", "result_path", resultPath, "elapsed", time.Since(started))
	return resultPath, nil
}

// fail writes the terminal failed record best-effort: a status store outage
// must not stop the caller from resolving the delivery.
func (p *Pipeline) fail(ctx context.Context, log *logger.Logger, job *Job, lastProgress int, cause error) error {
	if werr := p.writeStatus(ctx, job.JobID, status.StateFailed, lastProgress, "Error occurred", "", cause.Error()); werr != nil {
		log.Error("Failed to write terminal failed status", "error", werr)
	}
	log.Error("Job failed", "error", cause)
	return &ProcessingError{JobID: job.JobID, Err: cause}
}

func (p *Pipeline) writeStatus(ctx context.Context, jobID string, state status.State, progress int, message, resultPath, errMsg string) error {
	return p.statuses.Put(ctx, jobID, status.JobStatus{
		State:      state,
		Progress:   progress,
		Message:    message,
		ResultPath: resultPath,
		Error:      errMsg,
		UpdatedAt:  time.Now().UTC(),
	}, p.ttl)
}

func progressFor(unit, units int) int {
	return int(math.Round(float64(unit) / float64(units) * 100))
}
