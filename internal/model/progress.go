package model

// ProgressEvent is published on the Progress Bus for one job's lifecycle.
// It is never persisted; durable job state lives only in the Job Store.
type ProgressEvent struct {
	JobID     string     `json:"jobId"`
	Status    JobStatus  `json:"status"`
	Progress  float64    `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Result    *JobResult `json:"resultSummary,omitempty"`
	Error     string     `json:"error,omitempty"`
}
