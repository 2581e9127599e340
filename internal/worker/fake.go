package worker

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-process Agent for tests and offline development.
// Submitted jobs stay pending until the test completes them, which keeps
// asynchronous timing under the test's control.
type Fake struct {
	mu        sync.Mutex
	jobs      []FakeJob
	results   chan JobResult
	submitErr error
	closed    bool
}

// FakeJob records one submission.
type FakeJob struct {
	ID           string
	SystemUserID string
	Diagnostic   string
}

var _ Agent = (*Fake)(nil)

// NewFake returns a fake agent with room for buffered completions.
func NewFake() *Fake {
	return &Fake{results: make(chan JobResult, 16)}
}

// FailSubmissions makes every subsequent SubmitJob return err. Pass nil
// to restore normal behavior.
func (f *Fake) FailSubmissions(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SubmitJob records the submission and returns a deterministic job ID
// ("job-1", "job-2", ...).
func (f *Fake) SubmitJob(ctx context.Context, systemUserID, diagnostic string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}
	if f.closed {
		return "", fmt.Errorf("worker agent is closed")
	}

	job := FakeJob{
		ID:           fmt.Sprintf("job-%d", len(f.jobs)+1),
		SystemUserID: systemUserID,
		Diagnostic:   diagnostic,
	}
	f.jobs = append(f.jobs, job)
	return job.ID, nil
}

// Jobs returns a copy of everything submitted so far.
func (f *Fake) Jobs() []FakeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeJob, len(f.jobs))
	copy(out, f.jobs)
	return out
}

// Complete delivers a result for a pending job.
func (f *Fake) Complete(result JobResult) {
	f.results <- result
}

// Results delivers completions pushed through Complete.
func (f *Fake) Results() <-chan JobResult {
	return f.results
}

// Close stops accepting jobs and closes the results channel.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.results)
	}
	return nil
}
