package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfbatch/internal/pipeline"
	"pdfbatch/internal/platform/logger"
	"pdfbatch/internal/status"
)

// pushEnvelope is the Pub/Sub push request body. Data is base64 in the JSON
// wire form; encoding/json decodes it into raw bytes.
type pushEnvelope struct {
	Message      *pushMessage `json:"message"`
	Subscription string       `json:"subscription"`
}

type pushMessage struct {
	Data      []byte `json:"data"`
	MessageID string `json:"messageId"`
}

// PushHandler is the push-mode delivery adapter: one inbound request is one
// delivery, and the HTTP response is its resolution. A 200 for any executed
// job — failed ones included — is what stops the broker from redelivering a
// message whose job already reached a terminal state.
type PushHandler struct {
	log      *logger.Logger
	pipe     *pipeline.Pipeline
	statuses status.Store
}

func NewPushHandler(log *logger.Logger, pipe *pipeline.Pipeline, statuses status.Store) *PushHandler {
	return &PushHandler{
		log:      log.With("handler", "PushHandler"),
		pipe:     pipe,
		statuses: statuses,
	}
}

func (h *PushHandler) Receive(c *gin.Context) {
	var envelope pushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_envelope", fmt.Errorf("parse push envelope: %w", err))
		return
	}
	if envelope.Message == nil || len(envelope.Message.Data) == 0 {
		RespondError(c, http.StatusBadRequest, "invalid_envelope", errors.New("missing message data"))
		return
	}

	job, err := pipeline.DecodeJob(envelope.Message.Data)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job", err)
		return
	}

	log := h.log.With("job_id", job.JobID)

	if st, err := h.statuses.Get(c.Request.Context(), job.JobID); err != nil {
		log.Warn("Could not check existing status, proceeding", "error", err)
	} else if st != nil && st.State.Terminal() {
		log.Warn("Job already in a terminal state, skipping redelivery")
		RespondOK(c, gin.H{"job_id": job.JobID, "status": string(st.State)})
		return
	}

	// Run to a terminal state even if the push caller gives up on the
	// response; the job itself has no mid-flight cancellation.
	resultPath, err := h.pipe.Execute(context.WithoutCancel(c.Request.Context()), job)
	if err != nil {
		// Terminal failure: respond 200 so the delivery is resolved and the
		// job is never re-run.
		log.Warn("Job failed and will not be retried", "error", err)
		RespondOK(c, gin.H{"job_id": job.JobID, "status": string(status.StateFailed)})
		return
	}
	RespondOK(c, gin.H{
		"job_id":     job.JobID,
		"status":     string(status.StateCompleted),
		"result_url": resultPath,
	})
}
