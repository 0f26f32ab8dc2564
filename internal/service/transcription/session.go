package transcription

import (
	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/orchestrator"
)

// Session is a submitted transcription being followed in the background.
type Session struct {
	// ID is the provider job ID.
	ID string

	run    *orchestrator.Run
	done   chan struct{}
	result *models.TranscriptionResult
	err    error
}

func newSession(id string, run *orchestrator.Run) *Session {
	return &Session{
		ID:   id,
		run:  run,
		done: make(chan struct{}),
	}
}

// RunID returns the orchestration run ID.
func (s *Session) RunID() string {
	return s.run.ID()
}

// State returns the run state.
func (s *Session) State() orchestrator.State {
	return s.run.State()
}

// Cancel stops polling. Safe to call more than once and after completion.
func (s *Session) Cancel() {
	s.run.Cancel()
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its outcome.
func (s *Session) Wait() (*models.TranscriptionResult, error) {
	<-s.done
	return s.result, s.err
}

func (s *Session) finish(result *models.TranscriptionResult, err error) {
	s.result = result
	s.err = err
	close(s.done)
}
