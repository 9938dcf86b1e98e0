package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/storage"
)

// PageProcessor is the placeholder content processor: it verifies the input
// artifact exists, picks a page count, and simulates per-page analysis with a
// sleep. A real PDF analyzer plugs in behind the same Processor contract.
type PageProcessor struct {
	log   *logger.Logger
	store storage.Store

	// MinPages/MaxPages bound the simulated page count.
	MinPages int
	MaxPages int
	// UnitDelay bounds the simulated per-page work: a random duration in
	// [UnitDelayMin, UnitDelayMax) per page. Zero values skip the sleep.
	UnitDelayMin time.Duration
	UnitDelayMax time.Duration

	pages   int
	started time.Time
}

func NewPageProcessor(log *logger.Logger, store storage.Store) *PageProcessor {
	return &PageProcessor{
		log:          log.With("component", "PageProcessor"),
		store:        store,
		MinPages:     5,
		MaxPages:     20,
		UnitDelayMin: 3 * time.Second,
		UnitDelayMax: 5 * time.Second,
	}
}

func (p *PageProcessor) Open(ctx context.Context, job *Job) (int, error) {
	if _, err := p.store.Get(ctx, job.PDFPath); err != nil {
		return 0, fmt.Errorf("fetch input %s: %w", job.PDFPath, err)
	}
	p.started = time.Now()
	p.pages = p.MinPages
	if p.MaxPages > p.MinPages {
		p.pages += rand.Intn(p.MaxPages - p.MinPages + 1)
	}
	p.log.Info("PDF opened", "job_id", job.JobID, "pages", p.pages)
	return p.pages, nil
}

func (p *PageProcessor) ProcessUnit(ctx context.Context, job *Job, unit, units int) error {
	delay := p.UnitDelayMin
	if p.UnitDelayMax > p.UnitDelayMin {
		delay += time.Duration(rand.Int63n(int64(p.UnitDelayMax - p.UnitDelayMin)))
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *PageProcessor) Finish(ctx context.Context, job *Job) ([]byte, error) {
	result := map[string]any{
		"job_id":                  job.JobID,
		"pages":                   p.pages,
		"processed_at":            time.Now().UTC().Format(time.RFC3339),
		"processing_time_seconds": time.Since(p.started).Round(10 * time.Millisecond).Seconds(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}
