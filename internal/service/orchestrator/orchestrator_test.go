package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/provider/mock"
	"github.com/HienH/sale-smell/internal/validation"
)

// recorder collects observer callbacks.
type recorder struct {
	mu        sync.Mutex
	progress  []models.ProgressEvent
	completed []models.ResultEvent
	errs      []error
}

func (r *recorder) OnProgress(ev models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev)
}

func (r *recorder) OnComplete(ev models.ResultEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, ev)
}

func (r *recorder) OnError(ev models.ResultEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, ev.Err)
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.progress))
	for _, ev := range r.progress {
		out = append(out, ev.Percent)
	}
	return out
}

func (r *recorder) terminalCount() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed), len(r.errs)
}

func step(status string) mock.Step {
	return mock.Step{Record: &provider.JobRecord{Status: status}}
}

func newTestOrchestrator(t *testing.T, api provider.API, maxAttempts int) *Orchestrator {
	t.Helper()
	client, err := provider.NewClient(api, provider.Config{
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		MaxUploadBytes: validation.MaxFileSize,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return New(client, Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
	})
}

func testAudio() *validation.Audio {
	return &validation.Audio{
		Name:        "call.mp3",
		ContentType: "audio/mpeg",
		Data:        []byte("ID3 fake mp3 payload"),
	}
}

func TestRun_Execute_EndToEnd(t *testing.T) {
	api := mock.NewScripted(
		step("queued"),
		step("processing"),
		mock.Step{Record: &provider.JobRecord{
			Status: "completed",
			Text:   "Hello, thanks for calling.",
			Utterances: []provider.RawUtterance{
				{Speaker: "A", Text: "Hello, thanks for calling.", Start: 0, End: 1800, Confidence: 0.93},
			},
		}},
	)
	orch := newTestOrchestrator(t, api, 10)
	rec := &recorder{}

	run := orch.NewRun(testAudio(), Options{}, rec)
	result, err := run.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %v", result.Status)
	}
	if len(result.Speakers) != 1 {
		t.Errorf("expected 1 speaker segment, got %d", len(result.Speakers))
	}
	if result.Sentiment != nil {
		t.Errorf("expected nil sentiment, got %+v", result.Sentiment)
	}
	if api.Fetches() != 3 {
		t.Errorf("expected 3 fetches, got %d", api.Fetches())
	}
	if run.State() != StateCompleted {
		t.Errorf("expected StateCompleted, got %v", run.State())
	}
	if run.JobID() == "" {
		t.Error("expected job id to be set")
	}

	completed, errs := rec.terminalCount()
	if completed != 1 || errs != 0 {
		t.Errorf("expected 1 complete and 0 errors, got %d and %d", completed, errs)
	}

	percents := rec.percents()
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("expected final progress 100, got %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress decreased: %v", percents)
			break
		}
	}
	for _, p := range percents[:len(percents)-1] {
		if p >= 100 {
			t.Errorf("100%% reported before completion: %v", percents)
		}
	}
}

func TestRun_Execute_FeaturesOverride(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "completed", Text: "ok"}})
	orch := newTestOrchestrator(t, api, 3)

	features := provider.DefaultFeatures()
	features.SentimentAnalysis = false
	features.LanguageCode = "es"

	if _, err := orch.NewRun(testAudio(), Options{Features: &features}, nil).Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := api.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 job request, got %d", len(reqs))
	}
	if reqs[0].SentimentAnalysis {
		t.Error("expected sentiment analysis disabled")
	}
	if reqs[0].LanguageCode != "es" {
		t.Errorf("expected language es, got %q", reqs[0].LanguageCode)
	}
	if !reqs[0].SpeakerLabels || !reqs[0].RedactPII {
		t.Error("expected remaining features enabled")
	}
}

func TestRun_Execute_Timeout(t *testing.T) {
	api := mock.NewScripted(step("processing"))
	orch := newTestOrchestrator(t, api, 4)
	rec := &recorder{}

	_, err := orch.NewRun(testAudio(), Options{}, rec).Execute(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if api.Fetches() != 4 {
		t.Errorf("expected exactly 4 fetches, got %d", api.Fetches())
	}

	completed, errs := rec.terminalCount()
	if completed != 0 || errs != 1 {
		t.Errorf("expected 0 complete and 1 error, got %d and %d", completed, errs)
	}
	for _, p := range rec.percents() {
		if p > 99 {
			t.Errorf("progress above 99 without completion: %d", p)
		}
	}
}

func TestRun_Execute_JobFailed(t *testing.T) {
	api := mock.NewScripted(
		step("processing"),
		mock.Step{Record: &provider.JobRecord{Status: "error", Error: "Audio duration is too short"}},
	)
	orch := newTestOrchestrator(t, api, 10)
	run := orch.NewRun(testAudio(), Options{}, nil)

	_, err := run.Execute(context.Background())
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	var jf *JobFailedError
	if !errors.As(err, &jf) {
		t.Fatalf("expected *JobFailedError, got %T", err)
	}
	if jf.Message != "Audio duration is too short" {
		t.Errorf("expected provider message verbatim, got %q", jf.Message)
	}
	if run.State() != StateError {
		t.Errorf("expected StateError, got %v", run.State())
	}
}

func TestRun_Execute_CompletedWithoutText(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "completed"}})
	orch := newTestOrchestrator(t, api, 3)

	_, err := orch.NewRun(testAudio(), Options{}, nil).Execute(context.Background())
	if !errors.Is(err, ErrJobFailed) {
		t.Errorf("expected ErrJobFailed, got %v", err)
	}
}

func TestRun_Execute_ValidationBoundary(t *testing.T) {
	const limit = 16

	tests := []struct {
		name    string
		audio   *validation.Audio
		wantErr bool
	}{
		{"nil audio", nil, true},
		{"exactly max size", &validation.Audio{Name: "a.wav", ContentType: "audio/wav", Data: make([]byte, limit)}, false},
		{"one byte over", &validation.Audio{Name: "a.wav", ContentType: "audio/wav", Data: make([]byte, limit+1)}, true},
		{"empty", &validation.Audio{Name: "a.wav", ContentType: "audio/wav"}, true},
		{"unsupported type", &validation.Audio{Name: "a.txt", ContentType: "text/plain", Data: []byte("hello")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "completed", Text: "ok"}})
			client, err := provider.NewClient(api, provider.DefaultConfig())
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			orch := New(client, Config{PollInterval: time.Millisecond, MaxAttempts: 3, MaxUploadBytes: limit})
			rec := &recorder{}

			_, err = orch.NewRun(tt.audio, Options{}, rec).Execute(context.Background())
			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, validation.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if api.Calls() != 0 {
				t.Errorf("expected no provider calls, got %d", api.Calls())
			}
			if _, errs := rec.terminalCount(); errs != 1 {
				t.Errorf("expected 1 error callback, got %d", errs)
			}
		})
	}
}

func TestRun_Execute_RetryExhaustion(t *testing.T) {
	api := mock.NewScripted(mock.Step{Err: &provider.StatusError{Code: 503, Body: "unavailable"}})
	orch := newTestOrchestrator(t, api, 10)

	_, err := orch.NewRun(testAudio(), Options{}, nil).Execute(context.Background())
	if !errors.Is(err, provider.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("expected attempt count in error, got %q", err.Error())
	}
	if api.Fetches() != 3 {
		t.Errorf("expected 3 fetches, got %d", api.Fetches())
	}
}

func TestRun_Execute_UploadFailure(t *testing.T) {
	api := mock.NewScripted(step("queued"))
	api.FailUpload(&provider.StatusError{Code: 401, Body: "bad key"})
	orch := newTestOrchestrator(t, api, 3)

	run := orch.NewRun(testAudio(), Options{}, nil)
	_, err := run.Execute(context.Background())
	if !errors.Is(err, provider.ErrUpload) {
		t.Errorf("expected ErrUpload, got %v", err)
	}
	if !errors.Is(err, provider.ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	if api.Creates() != 0 {
		t.Errorf("expected no job submission, got %d", api.Creates())
	}
	if run.State() != StateError {
		t.Errorf("expected StateError, got %v", run.State())
	}
}

func TestRun_Cancel_StopsPolling(t *testing.T) {
	api := mock.NewScripted(step("processing"))
	orch := newTestOrchestrator(t, api, 1000)
	rec := &recorder{}
	run := orch.NewRun(testAudio(), Options{}, rec)

	api.OnFetch(func(n int) {
		if n == 2 {
			run.Cancel()
		}
	})

	_, err := run.Execute(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if api.Fetches() != 2 {
		t.Errorf("expected fetching to stop at 2, got %d", api.Fetches())
	}
	if run.State() != StateCancelled {
		t.Errorf("expected StateCancelled, got %v", run.State())
	}
	completed, errs := rec.terminalCount()
	if completed != 0 || errs != 0 {
		t.Errorf("expected no terminal callbacks, got %d complete and %d errors", completed, errs)
	}
}

func TestRun_Cancel_ContextCancelled(t *testing.T) {
	api := mock.NewScripted(step("processing"))
	orch := newTestOrchestrator(t, api, 1000)
	run := orch.NewRun(testAudio(), Options{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	api.OnFetch(func(n int) {
		if n == 3 {
			cancel()
		}
	})

	_, err := run.Execute(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if run.State() != StateCancelled {
		t.Errorf("expected StateCancelled, got %v", run.State())
	}
}

func TestRun_Await_CallerDeadline(t *testing.T) {
	api := mock.NewScripted(step("processing"))
	orch := newTestOrchestrator(t, api, 100000)
	rec := &recorder{}
	run := orch.NewRun(testAudio(), Options{}, rec)

	if _, err := run.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := run.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("expected a deadline not to be reported as a cancellation")
	}
	if run.State() != StateError {
		t.Errorf("expected StateError, got %v", run.State())
	}
	if _, errs := rec.terminalCount(); errs != 1 {
		t.Errorf("expected one error callback, got %d", errs)
	}
}

func TestRun_Cancel_BeforeExecute(t *testing.T) {
	api := mock.New()
	orch := newTestOrchestrator(t, api, 10)
	run := orch.NewRun(testAudio(), Options{}, nil)

	if !run.Cancel() {
		t.Error("expected Cancel to return true")
	}
	_, err := run.Execute(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if api.Calls() != 0 {
		t.Errorf("expected no provider calls, got %d", api.Calls())
	}
}

func TestRun_Cancel_AfterCompletion(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "completed", Text: "ok"}})
	orch := newTestOrchestrator(t, api, 3)
	run := orch.NewRun(testAudio(), Options{}, nil)

	if _, err := run.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Cancel() || run.Cancel() {
		t.Error("expected Cancel on a completed run to be a no-op")
	}
	if run.State() != StateCompleted {
		t.Errorf("expected StateCompleted, got %v", run.State())
	}
}

func TestRun_SubmitThenAwait(t *testing.T) {
	api := mock.New()
	orch := newTestOrchestrator(t, api, 10)
	run := orch.NewRun(testAudio(), Options{}, nil)

	jobID, err := run.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID == "" || run.State() != StateProcessing {
		t.Fatalf("expected processing with a job id, got %q in %v", jobID, run.State())
	}
	if api.Fetches() != 0 {
		t.Errorf("expected no fetch before Await, got %d", api.Fetches())
	}

	result, err := run.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.ID != jobID {
		t.Errorf("expected result id %q, got %q", jobID, result.ID)
	}

	if _, err := run.Submit(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second Submit, got %v", err)
	}
}

func TestOrchestrator_PollUntilTerminal(t *testing.T) {
	api := mock.New()
	orch := newTestOrchestrator(t, api, 10)
	rec := &recorder{}

	result, err := orch.PollUntilTerminal(context.Background(), "existing-job", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID != "existing-job" {
		t.Errorf("expected existing-job, got %q", result.ID)
	}
	if api.Uploads() != 0 || api.Creates() != 0 {
		t.Error("expected no upload or submission when resuming")
	}
	if result.Sentiment == nil {
		t.Error("expected sentiment from the simulated call")
	}
}

func TestOrchestrator_GetStatus(t *testing.T) {
	api := mock.NewScripted(step("QUEUED"), step("processing"))
	orch := newTestOrchestrator(t, api, 10)

	result, err := orch.GetStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusQueued {
		t.Errorf("expected queued, got %v", result.Status)
	}
	if api.Fetches() != 1 {
		t.Errorf("expected a single fetch, got %d", api.Fetches())
	}
}

func TestPollPercent(t *testing.T) {
	tests := []struct {
		i, max int
		want   int
	}{
		{1, 60, 21},
		{30, 60, 60},
		{59, 60, 98},
		{60, 60, 99},
		{1, 1, 99},
	}
	for _, tt := range tests {
		if got := pollPercent(tt.i, tt.max); got != tt.want {
			t.Errorf("pollPercent(%d, %d) = %d, want %d", tt.i, tt.max, got, tt.want)
		}
	}
}

func TestOptions_Features(t *testing.T) {
	custom := provider.Features{SpeakerLabels: true}

	tests := []struct {
		name     string
		opts     Options
		language string
		want     string
	}{
		{"defaults", Options{}, "", provider.DefaultLanguageCode},
		{"configured language", Options{}, "en_au", "en_au"},
		{"run language wins", Options{Features: &provider.Features{LanguageCode: "fr"}}, "en_au", "fr"},
		{"run without language", Options{Features: &custom}, "en_au", "en_au"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.features(tt.language).LanguageCode; got != tt.want {
				t.Errorf("language = %q, want %q", got, tt.want)
			}
		})
	}
	if custom.LanguageCode != "" {
		t.Error("expected caller features to be left unmodified")
	}
}
