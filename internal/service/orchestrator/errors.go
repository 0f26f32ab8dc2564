package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the job did not reach a terminal status within the
	// polling budget. The job may still finish on the provider side.
	ErrTimeout = errors.New("exceeded maximum polling attempts")

	// ErrJobFailed means the provider reported the job as failed.
	ErrJobFailed = errors.New("transcription job failed")

	// ErrCancelled means the caller stopped the run.
	ErrCancelled = errors.New("transcription cancelled")
)

// JobFailedError carries the provider's failure message verbatim.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("transcription job %s failed: %s", e.JobID, e.Message)
}

// Is makes errors.Is(err, ErrJobFailed) match.
func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}
