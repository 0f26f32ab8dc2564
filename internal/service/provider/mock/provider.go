// Package mock provides an in-process speech-analysis provider for local
// runs and tests. By default each job moves queued → processing →
// completed over successive polls and returns a canned sales call.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

// Step is one scripted GetJob response. The last step repeats forever.
type Step struct {
	Record *provider.JobRecord
	Err    error
}

// Provider implements provider.API with scripted responses.
type Provider struct {
	mu sync.Mutex

	script    []Step
	uploadErr error
	createErr []error // consumed one per CreateJob call

	jobs      map[string]int // job id -> fetches so far
	jobSeq    int
	uploads   int
	creates   int
	fetches   int
	requests  []provider.JobRequest
	fetchHook func(n int)
}

// callCounter tracks which simulated call to use next (cycles through defaults)
var (
	callCounter int
	counterMu   sync.Mutex
)

// New creates a mock provider simulating a full job lifecycle.
func New() *Provider {
	counterMu.Lock()
	call := DefaultCalls[callCounter%len(DefaultCalls)]
	callCounter++
	counterMu.Unlock()

	return NewScripted(
		Step{Record: &provider.JobRecord{Status: "queued"}},
		Step{Record: &provider.JobRecord{Status: "processing"}},
		Step{Record: call.Record()},
	)
}

// NewScripted creates a mock provider that answers GetJob with steps in
// order. With no steps every job stays queued.
func NewScripted(steps ...Step) *Provider {
	if len(steps) == 0 {
		steps = []Step{{Record: &provider.JobRecord{Status: "queued"}}}
	}
	return &Provider{
		script: steps,
		jobs:   make(map[string]int),
	}
}

// Name implements provider.API.
func (p *Provider) Name() string {
	return "mock"
}

// FailUpload makes every Upload return err.
func (p *Provider) FailUpload(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploadErr = err
}

// FailCreate makes the next len(errs) CreateJob calls fail in order.
func (p *Provider) FailCreate(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createErr = append(p.createErr, errs...)
}

// OnFetch registers a hook called with the 1-based fetch count before each
// GetJob answers.
func (p *Provider) OnFetch(hook func(n int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchHook = hook
}

// Upload implements provider.API.
func (p *Provider) Upload(ctx context.Context, audio *validation.Audio) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uploads++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	return "mock://upload/" + uuid.NewString(), nil
}

// CreateJob implements provider.API.
func (p *Provider) CreateJob(ctx context.Context, req provider.JobRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.creates++
	p.requests = append(p.requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(p.createErr) > 0 {
		err := p.createErr[0]
		p.createErr = p.createErr[1:]
		return "", err
	}

	p.jobSeq++
	id := fmt.Sprintf("mock-job-%d", p.jobSeq)
	p.jobs[id] = 0
	return id, nil
}

// GetJob implements provider.API.
func (p *Provider) GetJob(ctx context.Context, jobID string) (*provider.JobRecord, error) {
	p.mu.Lock()
	p.fetches++
	n := p.fetches
	hook := p.fetchHook
	p.mu.Unlock()

	// The hook runs unlocked so it may call back into the provider.
	if hook != nil {
		hook(n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := p.jobs[jobID]
	p.jobs[jobID] = idx + 1
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}

	step := p.script[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	record := *step.Record
	record.ID = jobID
	return &record, nil
}

// Uploads returns the number of Upload calls.
func (p *Provider) Uploads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploads
}

// Creates returns the number of CreateJob calls.
func (p *Provider) Creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

// Fetches returns the number of GetJob calls.
func (p *Provider) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// Requests returns the job requests received so far.
func (p *Provider) Requests() []provider.JobRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.JobRequest{}, p.requests...)
}

// Calls returns the total number of provider calls of any kind.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploads + p.creates + p.fetches
}
