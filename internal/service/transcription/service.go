// Package transcription is the UI-facing entry point: start a job, check
// it, or follow it to completion with simple callbacks.
package transcription

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/validation"
)

// Options are per-transcription overrides.
type Options = orchestrator.Options

// Callbacks receive the progress of one transcription. Any may be nil.
// Messages are human-readable.
type Callbacks struct {
	OnProgress func(progress int, message string)
	OnComplete func(result *models.TranscriptionResult)
	OnError    func(message string)
}

// callbackObserver adapts Callbacks to orchestrator.Observer.
type callbackObserver struct {
	cb Callbacks
}

func (o callbackObserver) OnProgress(ev models.ProgressEvent) {
	if o.cb.OnProgress != nil {
		o.cb.OnProgress(ev.Percent, ev.Message)
	}
}

func (o callbackObserver) OnComplete(ev models.ResultEvent) {
	if o.cb.OnComplete != nil {
		o.cb.OnComplete(ev.Result)
	}
}

func (o callbackObserver) OnError(ev models.ResultEvent) {
	if o.cb.OnError != nil {
		o.cb.OnError(UserMessage(ev.Err))
	}
}

// Option configures a Service.
type Option func(*Service)

// WithObservers attaches observers to every run started by the service.
func WithObservers(observers ...orchestrator.Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observers...)
	}
}

// Service starts and tracks transcriptions.
type Service struct {
	orch      *orchestrator.Orchestrator
	observers []orchestrator.Observer
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a transcription service.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Service {
	s := &Service{
		orch:     orch,
		logger:   logging.WithComponent("transcription"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartTranscription uploads and submits the audio, then follows the job
// in the background. It returns once the job is submitted. Polling is not
// bound to ctx; use Session.Cancel to stop it.
func (s *Service) StartTranscription(ctx context.Context, audio *validation.Audio, opts Options, cb Callbacks) (*Session, error) {
	run := s.orch.NewRun(audio, opts, s.observer(cb))

	jobID, err := run.Submit(ctx)
	if err != nil {
		return nil, err
	}

	session := newSession(jobID, run)
	s.track(session)

	go func() {
		defer s.untrack(session)
		result, err := run.Await(context.WithoutCancel(ctx))
		session.finish(result, err)
		if err != nil {
			s.logger.Debug().Err(err).Str("jobId", jobID).Msg("Background transcription ended with error")
		}
	}()

	return session, nil
}

// Transcribe runs one transcription to completion on the caller's
// goroutine. Cancelling ctx cancels the run.
func (s *Service) Transcribe(ctx context.Context, audio *validation.Audio, opts Options, cb Callbacks) (*models.TranscriptionResult, error) {
	return s.orch.NewRun(audio, opts, s.observer(cb)).Execute(ctx)
}

// CheckStatus returns the current state of a job with a single fetch.
func (s *Service) CheckStatus(ctx context.Context, id string) (*models.TranscriptionResult, error) {
	return s.orch.GetStatus(ctx, id)
}

// PollTranscriptionStatus follows an existing job until it completes,
// fails, times out or ctx is cancelled.
func (s *Service) PollTranscriptionStatus(ctx context.Context, id string, cb Callbacks) (*models.TranscriptionResult, error) {
	return s.orch.PollUntilTerminal(ctx, id, s.observer(cb))
}

// Session returns the in-flight session for a job started by this service.
func (s *Service) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Cancel stops following a job. Returns false when no such session is in
// flight.
func (s *Service) Cancel(id string) bool {
	session, ok := s.Session(id)
	if !ok {
		return false
	}
	session.Cancel()
	return true
}

// Active returns the number of in-flight sessions.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown cancels every in-flight session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}
	if len(sessions) > 0 {
		s.logger.Info().Int("sessions", len(sessions)).Msg("Cancelled in-flight transcriptions")
	}
}

func (s *Service) observer(cb Callbacks) orchestrator.Observer {
	observers := make(orchestrator.Observers, 0, len(s.observers)+1)
	observers = append(observers, callbackObserver{cb: cb})
	observers = append(observers, s.observers...)
	return observers
}

func (s *Service) track(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *Service) untrack(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.ID] == session {
		delete(s.sessions, session.ID)
	}
}
