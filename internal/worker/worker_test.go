package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/queue"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
)

// scriptedSource hands out queued deliveries and records every call so tests
// can assert both counts and ordering.
type scriptedSource struct {
	mu         sync.Mutex
	deliveries []*queue.Delivery
	events     []string
	acks       int
}

func (s *scriptedSource) Receive(context.Context) (*queue.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return nil, nil
	}
	d := s.deliveries[0]
	s.deliveries = s.deliveries[1:]
	return d, nil
}

func (s *scriptedSource) Ack(context.Context, *queue.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks++
	s.events = append(s.events, "ack")
	return nil
}

func (s *scriptedSource) ExtendLease(context.Context, *queue.Delivery, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "extend")
	return nil
}

func (s *scriptedSource) ackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks
}

func (s *scriptedSource) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type stubProcessor struct {
	mu        sync.Mutex
	opens     int
	unitDelay time.Duration
	unitErr   error
	panicOpen bool
}

func (p *stubProcessor) Open(context.Context, *pipeline.Job) (int, error) {
	p.mu.Lock()
	p.opens++
	p.mu.Unlock()
	if p.panicOpen {
		panic("processor blew up")
	}
	return 3, nil
}

func (p *stubProcessor) ProcessUnit(context.Context, *pipeline.Job, int, int) error {
	if p.unitDelay > 0 {
		time.Sleep(p.unitDelay)
	}
	return p.unitErr
}

func (p *stubProcessor) Finish(context.Context, *pipeline.Job) ([]byte, error) {
	return []byte(`{}`), nil
}

func (p *stubProcessor) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func newTestWorker(t *testing.T, source queue.Source, proc pipeline.Processor, statuses status.Store) *Worker {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Put(context.Background(), []byte("%PDF"), "uploads/j1/a.pdf"); err != nil {
		t.Fatalf("seed input: %v", err)
	}
	pipe := pipeline.New(logger.NewNop(), func() pipeline.Processor { return proc }, store, statuses, 24*time.Hour)
	return New(logger.NewNop(), source, pipe, statuses, Options{
		IdleDelay:      time.Millisecond,
		ErrorBackoff:   time.Millisecond,
		LeasePeriod:    2 * time.Millisecond,
		LeaseExtension: 10 * time.Millisecond,
	})
}

func validDelivery() *queue.Delivery {
	return &queue.Delivery{
		Payload: []byte(`{"job_id":"j1","pdf_path":"uploads/j1/a.pdf"}`),
		AckID:   "ack-1",
	}
}

func TestWorker_AcksExactlyOnceOnSuccess(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	w := newTestWorker(t, source, &stubProcessor{}, statuses)

	w.handle(context.Background(), validDelivery())

	if got := source.ackCount(); got != 1 {
		t.Fatalf("expected exactly one ack, got %d", got)
	}
	st, _ := statuses.Get(context.Background(), "j1")
	if st == nil || st.State != status.StateCompleted {
		t.Fatalf("expected completed status, got %+v", st)
	}
}

func TestWorker_AcksExactlyOnceOnJobFailure(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	proc := &stubProcessor{unitErr: errors.New("corrupt page")}
	w := newTestWorker(t, source, proc, statuses)

	w.handle(context.Background(), validDelivery())

	if got := source.ackCount(); got != 1 {
		t.Fatalf("expected exactly one ack, got %d", got)
	}
	st, _ := statuses.Get(context.Background(), "j1")
	if st == nil || st.State != status.StateFailed {
		t.Fatalf("expected failed status, got %+v", st)
	}
	if st.Error == "" {
		t.Fatalf("expected error_msg to be populated")
	}
}

func TestWorker_AcksExactlyOnceOnPanic(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	w := newTestWorker(t, source, &stubProcessor{panicOpen: true}, statuses)

	w.handle(context.Background(), validDelivery())

	if got := source.ackCount(); got != 1 {
		t.Fatalf("expected exactly one ack after panic, got %d", got)
	}
}

func TestWorker_DropsAndAcksUndecodableMessage(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	proc := &stubProcessor{}
	w := newTestWorker(t, source, proc, statuses)

	w.handle(context.Background(), &queue.Delivery{Payload: []byte(`{"pdf_path":"x"}`), AckID: "ack-1"})

	if got := source.ackCount(); got != 1 {
		t.Fatalf("expected the bad message to be acked, got %d acks", got)
	}
	if proc.openCount() != 0 {
		t.Fatalf("pipeline must not run for an undecodable message")
	}
	if entries, _ := statuses.Scan(context.Background()); len(entries) != 0 {
		t.Fatalf("no status record expected for a dropped message, got %+v", entries)
	}
}

func TestWorker_SkipsRedeliveryOfTerminalJob(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	_ = statuses.Put(context.Background(), "j1", status.JobStatus{State: status.StateCompleted, Progress: 100}, time.Hour)
	proc := &stubProcessor{}
	w := newTestWorker(t, source, proc, statuses)

	w.handle(context.Background(), validDelivery())

	if got := source.ackCount(); got != 1 {
		t.Fatalf("expected redelivery to be acked, got %d", got)
	}
	if proc.openCount() != 0 {
		t.Fatalf("terminal job must not be re-run")
	}
	st, _ := statuses.Get(context.Background(), "j1")
	if st.State != status.StateCompleted {
		t.Fatalf("terminal status must be preserved, got %s", st.State)
	}
}

func TestWorker_NoLeaseRenewalAfterAck(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	// Slow units so the extender gets several cycles in while the job runs.
	w := newTestWorker(t, source, &stubProcessor{unitDelay: 10 * time.Millisecond}, statuses)

	w.handle(context.Background(), validDelivery())
	time.Sleep(20 * time.Millisecond)

	events := source.eventLog()
	acked := false
	for _, ev := range events {
		if ev == "ack" {
			acked = true
			continue
		}
		if acked && ev == "extend" {
			t.Fatalf("lease renewal after ack: %v", events)
		}
	}
	if !acked {
		t.Fatalf("delivery was never acked: %v", events)
	}
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	source := &scriptedSource{}
	statuses := status.NewMemoryStore()
	w := newTestWorker(t, source, &stubProcessor{}, statuses)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}
