package transcription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HienH/sale-smell/internal/models"
	"github.com/HienH/sale-smell/internal/service/orchestrator"
	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/service/provider/mock"
	"github.com/HienH/sale-smell/internal/validation"
)

func newTestService(t *testing.T, api provider.API, maxAttempts int, opts ...Option) *Service {
	t.Helper()
	client, err := provider.NewClient(api, provider.Config{MaxRetries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	orch := orchestrator.New(client, orchestrator.Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  maxAttempts,
	})
	return New(orch, opts...)
}

func testAudio() *validation.Audio {
	return &validation.Audio{Name: "call.wav", ContentType: "audio/wav", Data: []byte("RIFF....WAVE")}
}

type callbackLog struct {
	mu       sync.Mutex
	progress []int
	messages []string
	results  []*models.TranscriptionResult
	errors   []string
}

func (l *callbackLog) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(progress int, message string) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.progress = append(l.progress, progress)
			l.messages = append(l.messages, message)
		},
		OnComplete: func(result *models.TranscriptionResult) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.results = append(l.results, result)
		},
		OnError: func(message string) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.errors = append(l.errors, message)
		},
	}
}

func TestService_StartTranscription(t *testing.T) {
	api := mock.New()
	svc := newTestService(t, api, 10)
	calls := &callbackLog{}

	session, err := svc.StartTranscription(context.Background(), testAudio(), Options{}, calls.callbacks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a job id")
	}

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	result, err := session.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %v", result.Status)
	}

	calls.mu.Lock()
	defer calls.mu.Unlock()
	if len(calls.results) != 1 || len(calls.errors) != 0 {
		t.Errorf("expected 1 result and no errors, got %d and %d", len(calls.results), len(calls.errors))
	}
	if last := calls.progress[len(calls.progress)-1]; last != 100 {
		t.Errorf("expected final progress 100, got %d", last)
	}
	for _, m := range calls.messages {
		if m == "" {
			t.Error("expected a message with every progress callback")
		}
	}
}

func TestService_StartTranscription_NotBoundToRequestContext(t *testing.T) {
	api := mock.New()
	svc := newTestService(t, api, 10)

	ctx, cancel := context.WithCancel(context.Background())
	session, err := svc.StartTranscription(ctx, testAudio(), Options{}, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	if _, err := session.Wait(); err != nil {
		t.Errorf("expected background polling to survive the request context, got %v", err)
	}
}

func TestService_StartTranscription_ValidationError(t *testing.T) {
	api := mock.New()
	svc := newTestService(t, api, 10)
	calls := &callbackLog{}

	audio := &validation.Audio{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hi")}
	_, err := svc.StartTranscription(context.Background(), audio, Options{}, calls.callbacks())
	if !errors.Is(err, validation.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if api.Calls() != 0 {
		t.Errorf("expected no provider calls, got %d", api.Calls())
	}

	calls.mu.Lock()
	defer calls.mu.Unlock()
	if len(calls.errors) != 1 || calls.errors[0] != UserMessage(validation.ErrUnsupportedType) {
		t.Errorf("expected the user message for unsupported type, got %v", calls.errors)
	}
}

func TestService_Cancel(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "processing"}})
	svc := newTestService(t, api, 100000)
	calls := &callbackLog{}

	session, err := svc.StartTranscription(context.Background(), testAudio(), Options{}, calls.callbacks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.Session(session.ID); !ok {
		t.Fatal("expected session to be tracked")
	}

	if !svc.Cancel(session.ID) {
		t.Fatal("expected Cancel to find the session")
	}
	_, err = session.Wait()
	if !errors.Is(err, orchestrator.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	session.Cancel()

	deadline := time.Now().Add(time.Second)
	for svc.Active() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if svc.Active() != 0 {
		t.Errorf("expected no active sessions, got %d", svc.Active())
	}
	if svc.Cancel(session.ID) {
		t.Error("expected Cancel on a finished session to report false")
	}

	calls.mu.Lock()
	defer calls.mu.Unlock()
	if len(calls.results) != 0 || len(calls.errors) != 0 {
		t.Errorf("expected no terminal callbacks after cancel, got %d results and %d errors", len(calls.results), len(calls.errors))
	}
}

func TestService_CheckStatus(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "processing"}})
	svc := newTestService(t, api, 10)

	result, err := svc.CheckStatus(context.Background(), "job-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID != "job-7" || result.Status != models.StatusProcessing {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestService_PollTranscriptionStatus_Timeout(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "queued"}})
	svc := newTestService(t, api, 3)
	calls := &callbackLog{}

	_, err := svc.PollTranscriptionStatus(context.Background(), "job-1", calls.callbacks())
	if !errors.Is(err, orchestrator.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	calls.mu.Lock()
	defer calls.mu.Unlock()
	if len(calls.errors) != 1 || calls.errors[0] != "Transcription is still processing. Please check back later." {
		t.Errorf("unexpected error messages: %v", calls.errors)
	}
}

type countingObserver struct {
	mu        sync.Mutex
	progress  int
	completed []models.ResultEvent
}

func (c *countingObserver) OnProgress(models.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress++
}

func (c *countingObserver) OnComplete(ev models.ResultEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, ev)
}

func (c *countingObserver) OnError(models.ResultEvent) {}

func TestService_WithObservers(t *testing.T) {
	obs := &countingObserver{}
	svc := newTestService(t, mock.New(), 10, WithObservers(obs))

	session, err := svc.StartTranscription(context.Background(), testAudio(), Options{}, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := session.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.progress == 0 {
		t.Error("expected progress events on the attached observer")
	}
	if len(obs.completed) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(obs.completed))
	}
	if obs.completed[0].RunID != session.RunID() || obs.completed[0].JobID != session.ID {
		t.Errorf("unexpected completion event: %+v", obs.completed[0])
	}
}

func TestService_Transcribe(t *testing.T) {
	obs := &countingObserver{}
	svc := newTestService(t, mock.New(), 10, WithObservers(obs))
	calls := &callbackLog{}

	result, err := svc.Transcribe(context.Background(), testAudio(), Options{}, calls.callbacks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}

	calls.mu.Lock()
	if len(calls.results) != 1 || calls.progress[len(calls.progress)-1] != 100 {
		t.Errorf("expected callbacks to end at 100%% with one result, got %v and %d results", calls.progress, len(calls.results))
	}
	calls.mu.Unlock()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.completed) != 1 || obs.completed[0].JobID != result.ID {
		t.Errorf("expected the attached observer to see the completion, got %+v", obs.completed)
	}
}

func TestService_Transcribe_Cancelled(t *testing.T) {
	api := mock.NewScripted(mock.Step{Record: &provider.JobRecord{Status: "processing"}})
	svc := newTestService(t, api, 100000)

	ctx, cancel := context.WithCancel(context.Background())
	api.OnFetch(func(n int) {
		if n == 2 {
			cancel()
		}
	})

	_, err := svc.Transcribe(ctx, testAudio(), Options{}, Callbacks{})
	if !errors.Is(err, orchestrator.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"too large", validation.ErrFileTooLarge, "The audio file is too large. The maximum size is 100 MB."},
		{"wrapped validation", fmt.Errorf("submit: %w", validation.ErrEmptyFile), "The audio file is empty."},
		{"authentication", &provider.Error{Kind: provider.ErrAuthentication, Op: "submit job"}, "Transcription service rejected the credentials: invalid credentials."},
		{"upload with auth kind", &provider.Error{Kind: provider.ErrUpload, Err: &provider.Error{Kind: provider.ErrAuthentication}}, "Transcription service rejected the credentials: invalid credentials."},
		{"upload", &provider.Error{Kind: provider.ErrUpload, Err: errors.New("connection reset")}, "Uploading the audio failed. Please try again."},
		{"rate limit", &provider.Error{Kind: provider.ErrRateLimit}, "Rate limit exceeded. Please retry later."},
		{"job failed", &orchestrator.JobFailedError{JobID: "j", Message: "Audio duration is too short"}, "Audio duration is too short"},
		{"timeout", fmt.Errorf("job j: %w", orchestrator.ErrTimeout), "Transcription is still processing. Please check back later."},
		{"cancelled", orchestrator.ErrCancelled, "Transcription was cancelled."},
		{"caller deadline", fmt.Errorf("poll job j: %w", context.DeadlineExceeded), "Transcription timed out. Please try again."},
		{"unknown", errors.New("boom"), "Transcription failed. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
