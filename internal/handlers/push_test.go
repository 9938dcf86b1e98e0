package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
)

type countingProcessor struct {
	mu      sync.Mutex
	opens   int
	unitErr error
}

func (p *countingProcessor) Open(context.Context, *pipeline.Job) (int, error) {
	p.mu.Lock()
	p.opens++
	p.mu.Unlock()
	return 2, nil
}

func (p *countingProcessor) ProcessUnit(context.Context, *pipeline.Job, int, int) error {
	return p.unitErr
}

func (p *countingProcessor) Finish(context.Context, *pipeline.Job) ([]byte, error) {
	return []byte(`{}`), nil
}

func (p *countingProcessor) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func newPushTestRouter(t *testing.T, proc pipeline.Processor, statuses status.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStore(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Put(context.Background(), []byte("%PDF"), "uploads/j1/a.pdf"); err != nil {
		t.Fatalf("seed input: %v", err)
	}
	pipe := pipeline.New(logger.NewNop(), func() pipeline.Processor { return proc }, store, statuses, 24*time.Hour)
	h := NewPushHandler(logger.NewNop(), pipe, statuses)

	router := gin.New()
	router.POST("/", h.Receive)
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func pushBody(payload string) string {
	data := base64.StdEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf(`{"message":{"data":"%s","messageId":"m1"},"subscription":"projects/p/subscriptions/s"}`, data)
}

func TestPushHandler_MissingMessageIs400(t *testing.T) {
	proc := &countingProcessor{}
	router := newPushTestRouter(t, proc, status.NewMemoryStore())

	rec := postJSON(router, `{"subscription":"projects/p/subscriptions/s"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
	if proc.openCount() != 0 {
		t.Fatalf("pipeline must not run without a message")
	}
}

func TestPushHandler_MissingDataIs400(t *testing.T) {
	proc := &countingProcessor{}
	router := newPushTestRouter(t, proc, status.NewMemoryStore())

	rec := postJSON(router, `{"message":{"messageId":"m1"},"subscription":"s"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
	if proc.openCount() != 0 {
		t.Fatalf("pipeline must not run without message data")
	}
}

func TestPushHandler_InvalidJobPayloadIs400(t *testing.T) {
	proc := &countingProcessor{}
	router := newPushTestRouter(t, proc, status.NewMemoryStore())

	rec := postJSON(router, pushBody(`{"pdf_path":"uploads/j1/a.pdf"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
	if proc.openCount() != 0 {
		t.Fatalf("pipeline must not run for an invalid job payload")
	}
}

func TestPushHandler_CompletedJobIs200(t *testing.T) {
	statuses := status.NewMemoryStore()
	router := newPushTestRouter(t, &countingProcessor{}, statuses)

	rec := postJSON(router, pushBody(`{"job_id":"j1","pdf_path":"uploads/j1/a.pdf"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "completed" || resp["result_url"] != "results/j1/result.json" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestPushHandler_FailedJobStillReturns200(t *testing.T) {
	statuses := status.NewMemoryStore()
	proc := &countingProcessor{unitErr: errors.New("corrupt page")}
	router := newPushTestRouter(t, proc, statuses)

	rec := postJSON(router, pushBody(`{"job_id":"j1","pdf_path":"uploads/j1/a.pdf"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("a failed job must still resolve the delivery with 200, got %d", rec.Code)
	}

	st, _ := statuses.Get(context.Background(), "j1")
	if st == nil || st.State != status.StateFailed {
		t.Fatalf("expected failed status, got %+v", st)
	}
}

func TestPushHandler_TerminalJobIsNotRerun(t *testing.T) {
	statuses := status.NewMemoryStore()
	_ = statuses.Put(context.Background(), "j1", status.JobStatus{State: status.StateCompleted, Progress: 100}, time.Hour)
	proc := &countingProcessor{}
	router := newPushTestRouter(t, proc, statuses)

	rec := postJSON(router, pushBody(`{"job_id":"j1","pdf_path":"uploads/j1/a.pdf"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if proc.openCount() != 0 {
		t.Fatalf("terminal job must not be re-run")
	}
}
