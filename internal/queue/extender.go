package queue

import (
	"context"
	"time"

	"pdfbatch/internal/platform/logger"
)

// LeaseExtender keeps one delivery's lease alive while a long job runs. It is
// started at most once per delivery; Stop before Start (or a second Stop) is a
// no-op. Renewal failures are logged and never escalated: a missed renewal
// risks redelivery but must not take the worker down.
type LeaseExtender struct {
	log       *logger.Logger
	source    Source
	delivery  *Delivery
	period    time.Duration
	extension time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
}

const stopJoinTimeout = time.Second

func NewLeaseExtender(log *logger.Logger, source Source, d *Delivery, period, extension time.Duration) *LeaseExtender {
	return &LeaseExtender{
		log:       log.With("component", "LeaseExtender"),
		source:    source,
		delivery:  d,
		period:    period,
		extension: extension,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (e *LeaseExtender) Start() {
	if e.started {
		return
	}
	e.started = true
	go e.extendLoop()
	e.log.Debug("Lease extender started")
}

// Stop halts the renewal cycle and waits, bounded, until the background
// goroutine has observably exited. Once Stop returns no further renewal call
// is issued.
func (e *LeaseExtender) Stop() {
	if !e.started || e.stopped {
		return
	}
	e.stopped = true
	close(e.stopCh)
	select {
	case <-e.doneCh:
	case <-time.After(stopJoinTimeout):
		e.log.Warn("Timed out waiting for lease extender to stop")
	}
	e.log.Debug("Lease extender stopped")
}

func (e *LeaseExtender) extendLoop() {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
		}
		// Re-check so a tick racing Stop cannot renew after Stop returned.
		select {
		case <-e.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := e.source.ExtendLease(ctx, e.delivery, e.extension)
		cancel()
		if err != nil {
			e.log.Error("Failed to extend lease", "error", err)
			continue
		}
		e.log.Debug("Extended delivery lease", "extension", e.extension)
	}
}
