package pipeline

import (
	"encoding/json"
	"fmt"
)

// Job is one unit of work, decoded from a queue message. JobID is the sole
// correlation key between delivery, status record, and artifacts.
type Job struct {
	JobID      string `json:"job_id"`
	PDFPath    string `json:"pdf_path"`
	BucketName string `json:"bucket_name,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// DecodeError marks a malformed or incomplete inbound payload. A job carrying
// this error never executes: push mode turns it into a client error, pull
// mode drops and acknowledges the message.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode job: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode job: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProcessingError is a failure after a job was accepted. It always resolves
// to a terminal failed status; the delivery is still acknowledged and the job
// is never retried.
type ProcessingError struct {
	JobID string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// DecodeJob parses a message payload into a Job and validates the required
// fields.
func DecodeJob(payload []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if job.JobID == "" {
		return nil, &DecodeError{Reason: "missing job_id"}
	}
	if job.PDFPath == "" {
		return nil, &DecodeError{Reason: "missing pdf_path"}
	}
	return &job, nil
}
