package models

// Event types published for an orchestration run.
const (
	EventProgress  = "transcription.progress"
	EventCompleted = "transcription.completed"
	EventFailed    = "transcription.failed"
)

// ProgressEvent reports the state of a run while it is in flight.
type ProgressEvent struct {
	EventType string    `json:"eventType"`
	RunID     string    `json:"runId"`
	JobID     string    `json:"jobId,omitempty"`
	State     string    `json:"state"`
	Status    JobStatus `json:"status,omitempty"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

// ResultEvent reports the terminal outcome of a run.
type ResultEvent struct {
	EventType string               `json:"eventType"`
	RunID     string               `json:"runId"`
	JobID     string               `json:"jobId,omitempty"`
	Outcome   string               `json:"outcome"`
	Result    *TranscriptionResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`

	// Err is the failure behind Error, for in-process consumers.
	Err error `json:"-"`
}
