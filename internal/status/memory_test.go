package status

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	want := JobStatus{
		State:     StateProcessing,
		Progress:  42,
		Message:   "Page 3/7 analyzing...",
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, "j1", want, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a record")
	}
	if got.State != want.State || got.Progress != want.Progress || got.Message != want.Message {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStore_AbsentJob(t *testing.T) {
	store := NewMemoryStore()

	got, err := store.Get(context.Background(), "never-started")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected absence, got %+v", got)
	}
}

func TestMemoryStore_RecordExpiresAfterTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if err := store.Put(ctx, "j1", JobStatus{State: StateCompleted, Progress: 100}, 24*time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	now = now.Add(24*time.Hour - time.Second)
	if got, _ := store.Get(ctx, "j1"); got == nil {
		t.Fatalf("record should still be readable just before expiry")
	}

	now = now.Add(2 * time.Second)
	if got, _ := store.Get(ctx, "j1"); got != nil {
		t.Fatalf("record should be absent after TTL, got %+v", got)
	}
}

func TestMemoryStore_EveryWriteRearmsTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	ttl := time.Hour
	if err := store.Put(ctx, "j1", JobStatus{State: StateProcessing, Progress: 10}, ttl); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A later write must extend the record's life from the write time, not
	// from job creation.
	now = now.Add(50 * time.Minute)
	if err := store.Put(ctx, "j1", JobStatus{State: StateProcessing, Progress: 80}, ttl); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	now = now.Add(30 * time.Minute)
	got, _ := store.Get(ctx, "j1")
	if got == nil {
		t.Fatalf("record expired despite re-armed TTL")
	}
	if got.Progress != 80 {
		t.Fatalf("expected latest write, got progress=%d", got.Progress)
	}
}

func TestMemoryStore_ScanSkipsExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	_ = store.Put(ctx, "old", JobStatus{State: StateCompleted}, time.Minute)
	now = now.Add(30 * time.Minute)
	_ = store.Put(ctx, "fresh", JobStatus{State: StateProcessing}, time.Hour)

	entries, err := store.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != "fresh" {
		t.Fatalf("unexpected scan result: %+v", entries)
	}
}

func TestJobStatus_WireShape(t *testing.T) {
	st := JobStatus{
		State:      StateCompleted,
		Progress:   100,
		Message:    "Processing completed!",
		ResultPath: "results/j1/result.json",
		UpdatedAt:  time.Date(2026, 2, 12, 6, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, key := range []string{`"status":"completed"`, `"progress":100`, `"result_url":"results/j1/result.json"`, `"error_msg":""`, `"updated_at":"2026-02-12T06:30:00Z"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("wire form missing %s: %s", key, raw)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	if StatePending.Terminal() || StateProcessing.Terminal() {
		t.Fatalf("pending/processing must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Fatalf("completed/failed must be terminal")
	}
}
