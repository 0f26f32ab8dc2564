// Package orchestrator drives a transcription job from upload to a
// normalized result: upload, submit, poll until terminal, report progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/observability/logging"
	"github.com/HienH/sale-smell/internal/observability/metrics"
	"github.com/HienH/sale-smell/internal/service/normalize"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

// Progress band reserved for upload and submit.
const (
	progressUploading  = 5
	progressSubmitting = 15
	progressSubmitted  = 20
	progressCeiling    = 99
	progressDone       = 100
)

// Provider is the subset of provider.Client the orchestrator needs.
type Provider interface {
	Upload(ctx context.Context, audio *validation.Audio) (string, error)
	SubmitJob(ctx context.Context, audioRef string, features provider.Features) (string, error)
	FetchJob(ctx context.Context, jobID string) (*provider.JobRecord, error)
}

// Config holds polling limits.
type Config struct {
	PollInterval   time.Duration
	MaxAttempts    int
	MaxUploadBytes int64
	LanguageCode   string // used when a run does not set one
}

// DefaultConfig returns a 5s poll interval with 60 attempts.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		MaxAttempts:    60,
		MaxUploadBytes: validation.MaxFileSize,
	}
}

// Options are per-run overrides.
type Options struct {
	// Features overrides the job features. Nil means all enabled.
	Features *provider.Features
}

func (o Options) features(languageCode string) provider.Features {
	f := provider.DefaultFeatures()
	if o.Features != nil {
		f = *o.Features
		if f.LanguageCode == "" {
			f.LanguageCode = languageCode
		}
	} else if languageCode != "" {
		f.LanguageCode = languageCode
	}
	return f
}

// Orchestrator creates runs against a shared provider client.
type Orchestrator struct {
	provider  Provider
	cfg       Config
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates an orchestrator. Zero config values fall back to defaults.
func New(p Provider, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	return &Orchestrator{
		provider:  p,
		cfg:       cfg,
		validator: validation.NewWithLimit(cfg.MaxUploadBytes),
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("orchestrator"),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// NewRun creates an idle run for the given audio.
func (o *Orchestrator) NewRun(audio *validation.Audio, opts Options, observer Observer) *Run {
	return o.newRun(audio, opts, observer)
}

// Resume creates a run that watches an already submitted job.
func (o *Orchestrator) Resume(jobID string, observer Observer) *Run {
	r := o.newRun(nil, Options{}, observer)
	r.jobID = jobID
	r.logger = logging.WithJob(r.id, jobID)
	// idle → processing is always allowed on a fresh lifecycle
	_ = r.lifecycle.Transition(StateProcessing)
	return r
}

// PollUntilTerminal polls an existing job until it completes, fails or the
// attempt budget runs out.
func (o *Orchestrator) PollUntilTerminal(ctx context.Context, jobID string, observer Observer) (*models.TranscriptionResult, error) {
	return o.Resume(jobID, observer).Await(ctx)
}

// GetStatus fetches and normalizes the current state of a job once.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*models.TranscriptionResult, error) {
	record, err := o.provider.FetchJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get status of job %s: %w", jobID, err)
	}
	result := normalize.Normalize(record)
	if result.ID == "" {
		result.ID = jobID
	}
	return &result, nil
}

func (o *Orchestrator) newRun(audio *validation.Audio, opts Options, observer Observer) *Run {
	if observer == nil {
		observer = Observers(nil)
	}
	id := uuid.NewString()
	return &Run{
		id:        id,
		orch:      o,
		audio:     audio,
		opts:      opts,
		observer:  observer,
		lifecycle: NewLifecycle(id),
		logger:    logging.WithRun(id),
	}
}

// Run is a single orchestration of one audio file or one existing job.
// A Run is used once; its methods are safe for concurrent use.
type Run struct {
	id        string
	orch      *Orchestrator
	audio     *validation.Audio
	opts      Options
	observer  Observer
	lifecycle *Lifecycle

	mu          sync.Mutex
	logger      zerolog.Logger
	jobID       string
	lastPercent int
	cancel      context.CancelFunc
	started     time.Time
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.id
}

// JobID returns the provider job ID, empty before submission.
func (r *Run) JobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	return r.lifecycle.State()
}

// Execute runs the full pipeline and returns the normalized result.
func (r *Run) Execute(ctx context.Context) (*models.TranscriptionResult, error) {
	if _, err := r.Submit(ctx); err != nil {
		return nil, err
	}
	return r.Await(ctx)
}

// Submit validates, uploads and submits the audio and returns the job ID.
// Validation failures happen before any network call.
func (r *Run) Submit(ctx context.Context) (string, error) {
	if err := r.orch.validator.Validate(r.audio); err != nil {
		r.orch.metrics.RecordValidationFailure("orchestrator")
		if terr := r.lifecycle.Transition(StateError); terr != nil {
			return "", r.stateError(terr)
		}
		r.log().Warn().Err(err).Msg("Audio rejected")
		r.observer.OnError(r.failure(err))
		return "", err
	}

	if err := r.lifecycle.Transition(StateUploading); err != nil {
		return "", r.stateError(err)
	}

	ctx, release, err := r.bind(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	r.log().Info().
		Str("file", r.audio.Name).
		Int64("bytes", r.audio.Size()).
		Msg("Uploading audio")
	r.progress(progressUploading, "", "Uploading audio")

	ref, err := r.orch.provider.Upload(ctx, r.audio)
	if err != nil {
		return "", r.fail(ctx, err)
	}

	r.progress(progressSubmitting, "", "Submitting transcription job")
	jobID, err := r.orch.provider.SubmitJob(ctx, ref, r.opts.features(r.orch.cfg.LanguageCode))
	if err != nil {
		return "", r.fail(ctx, err)
	}

	r.mu.Lock()
	r.jobID = jobID
	r.logger = logging.WithJob(r.id, jobID)
	r.mu.Unlock()

	if err := r.lifecycle.Transition(StateProcessing); err != nil {
		return "", r.stateError(err)
	}
	r.log().Info().Msg("Transcription job submitted")
	r.progress(progressSubmitted, models.StatusQueued, "Transcription job submitted")
	return jobID, nil
}

// Await polls the submitted job until it reaches a terminal status.
func (r *Run) Await(ctx context.Context) (*models.TranscriptionResult, error) {
	if state := r.lifecycle.State(); state != StateProcessing {
		return nil, r.stateError(fmt.Errorf("%w: await in state %s", ErrInvalidTransition, state))
	}

	ctx, release, err := r.bind(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := r.poll(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	return r.complete(result)
}

// Cancel stops the run. It never cancels the remote job. Cancelling a
// settled run is a no-op. Returns true if this call cancelled the run.
func (r *Run) Cancel() bool {
	cancelled := r.lifecycle.Cancel()

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	started := r.started
	r.mu.Unlock()

	if cancelled {
		r.log().Info().Msg("Run cancelled")
		if !started.IsZero() {
			r.orch.metrics.RecordRunEnd(StateCancelled.String(), time.Since(started).Seconds())
		}
	}
	return cancelled
}

// bind derives the run context for one phase. Cancel cancels it.
func (r *Run) bind(ctx context.Context) (context.Context, context.CancelFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lifecycle.State() == StateCancelled {
		return nil, nil, fmt.Errorf("run %s: %w", r.id, ErrCancelled)
	}
	if r.started.IsZero() {
		r.started = time.Now()
		r.orch.metrics.RecordRunStart()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	return ctx, cancel, nil
}

// poll fetches the job up to MaxAttempts times.
func (r *Run) poll(ctx context.Context) (*models.TranscriptionResult, error) {
	jobID := r.JobID()
	maxAttempts := r.orch.cfg.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record, err := r.orch.provider.FetchJob(ctx, jobID)
		r.orch.metrics.RecordPoll()
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		result := normalize.Normalize(record)
		if result.ID == "" {
			result.ID = jobID
		}

		switch result.Status {
		case models.StatusCompleted:
			if result.Text == "" {
				return nil, &JobFailedError{JobID: jobID, Message: "completed without transcript text"}
			}
			return &result, nil
		case models.StatusError:
			return nil, &JobFailedError{JobID: jobID, Message: result.Error}
		}

		r.log().Debug().
			Str("status", string(result.Status)).
			Int("attempt", attempt).
			Msg("Job not finished")
		r.progress(pollPercent(attempt, maxAttempts), result.Status, statusMessage(result.Status))

		if attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, r.orch.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
	}

	return nil, fmt.Errorf("job %s after %d attempts: %w", jobID, maxAttempts, ErrTimeout)
}

// progress reports a non-decreasing percentage while the run is live.
func (r *Run) progress(percent int, status models.JobStatus, message string) {
	r.mu.Lock()
	if percent < r.lastPercent {
		percent = r.lastPercent
	}
	r.lastPercent = percent
	jobID := r.jobID
	r.mu.Unlock()

	state := r.lifecycle.State()
	if state.IsTerminal() {
		return
	}
	r.observer.OnProgress(models.ProgressEvent{
		EventType: models.EventProgress,
		RunID:     r.id,
		JobID:     jobID,
		State:     state.String(),
		Status:    status,
		Percent:   percent,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (r *Run) complete(result *models.TranscriptionResult) (*models.TranscriptionResult, error) {
	if err := r.lifecycle.Transition(StateCompleted); err != nil {
		return nil, r.stateError(err)
	}
	r.end(StateCompleted)
	r.log().Info().
		Int("speakers", len(result.Speakers)).
		Int("textLength", len(result.Text)).
		Msg("Transcription completed")

	r.mu.Lock()
	r.lastPercent = progressDone
	r.mu.Unlock()

	r.observer.OnProgress(models.ProgressEvent{
		EventType: models.EventProgress,
		RunID:     r.id,
		JobID:     result.ID,
		State:     StateCompleted.String(),
		Status:    models.StatusCompleted,
		Percent:   progressDone,
		Message:   "Transcription complete",
		Timestamp: time.Now().UnixMilli(),
	})
	r.observer.OnComplete(models.ResultEvent{
		EventType: models.EventCompleted,
		RunID:     r.id,
		JobID:     result.ID,
		Outcome:   StateCompleted.String(),
		Result:    result,
		Timestamp: time.Now().UnixMilli(),
	})
	return result, nil
}

// fail moves the run to error, or to cancelled when the run or its context
// was cancelled, and returns the error to hand back to the caller. A caller
// deadline is an error, not a cancellation.
func (r *Run) fail(ctx context.Context, err error) error {
	if r.lifecycle.State() == StateCancelled ||
		errors.Is(ctx.Err(), context.Canceled) ||
		(ctx.Err() == nil && errors.Is(err, context.Canceled)) {
		r.Cancel()
		return fmt.Errorf("run %s: %w", r.id, ErrCancelled)
	}
	if terr := r.lifecycle.Transition(StateError); terr != nil {
		return r.stateError(terr)
	}
	r.end(StateError)
	r.log().Error().Err(err).Msg("Transcription failed")
	r.observer.OnError(r.failure(err))
	return err
}

func (r *Run) failure(err error) models.ResultEvent {
	return models.ResultEvent{
		EventType: models.EventFailed,
		RunID:     r.id,
		JobID:     r.JobID(),
		Outcome:   StateError.String(),
		Error:     err.Error(),
		Timestamp: time.Now().UnixMilli(),
		Err:       err,
	}
}

// stateError maps a refused transition onto ErrCancelled when the run was
// cancelled concurrently.
func (r *Run) stateError(err error) error {
	if r.lifecycle.State() == StateCancelled {
		return fmt.Errorf("run %s: %w", r.id, ErrCancelled)
	}
	return fmt.Errorf("run %s: %w", r.id, err)
}

func (r *Run) end(state State) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started.IsZero() {
		r.orch.metrics.RecordRunEnd(state.String(), time.Since(started).Seconds())
	}
}

func (r *Run) log() *zerolog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.logger
	return &l
}

// pollPercent interpolates the polling band for iteration i.
func pollPercent(i, maxAttempts int) int {
	p := progressSubmitted + (progressDone-progressSubmitted)*i/maxAttempts
	if p > progressCeiling {
		p = progressCeiling
	}
	return p
}

func statusMessage(status models.JobStatus) string {
	switch status {
	case models.StatusQueued:
		return "Waiting in provider queue"
	default:
		return "Transcribing and analysing call"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
