package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/status"
	"pdfbatch/internal/storage"
)

// JobsHandler exposes the read-only status projection: listing, per-job
// status, and the result artifact. It never writes status records.
type JobsHandler struct {
	log      *logger.Logger
	statuses status.Store
	store    storage.Store
}

func NewJobsHandler(log *logger.Logger, statuses status.Store, store storage.Store) *JobsHandler {
	return &JobsHandler{
		log:      log.With("handler", "JobsHandler"),
		statuses: statuses,
		store:    store,
	}
}

type jobListItem struct {
	JobID string `json:"job_id"`
	status.JobStatus
}

func (h *JobsHandler) List(c *gin.Context) {
	entries, err := h.statuses.Scan(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to scan job statuses", "error", err)
		RespondError(c, http.StatusInternalServerError, "scan_failed", err)
		return
	}
	items := make([]jobListItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, jobListItem{JobID: e.JobID, JobStatus: e.Status})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	RespondOK(c, gin.H{"jobs": items})
}

func (h *JobsHandler) Get(c *gin.Context) {
	jobID := c.Param("job_id")
	st, err := h.statuses.Get(c.Request.Context(), jobID)
	if err != nil {
		h.log.Error("Failed to read job status", "job_id", jobID, "error", err)
		RespondError(c, http.StatusInternalServerError, "status_read_failed", err)
		return
	}
	if st == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", errors.New("no status for job "+jobID))
		return
	}
	RespondOK(c, jobListItem{JobID: jobID, JobStatus: *st})
}

func (h *JobsHandler) GetResult(c *gin.Context) {
	jobID := c.Param("job_id")
	data, err := h.store.Get(c.Request.Context(), pipeline.ResultPath(jobID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "result_not_found", errors.New("no result for job "+jobID))
			return
		}
		h.log.Error("Failed to read result artifact", "job_id", jobID, "error", err)
		RespondError(c, http.StatusInternalServerError, "result_read_failed", err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
