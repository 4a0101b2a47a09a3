package command

import (
	"context"
	"sync"
)

// FakeRunner records invocations and replays a canned result. It is safe
// for concurrent use.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Spec

	Result *Result
	Err    error
	// OnRun, when set, is called instead of returning Result/Err
	OnRun func(spec Spec) (*Result, error)
}

// Run records spec and returns the configured outcome
func (f *FakeRunner) Run(_ context.Context, spec Spec) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	if f.OnRun != nil {
		return f.OnRun(spec)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result == nil {
		return &Result{}, nil
	}
	res := *f.Result
	return &res, nil
}

// Calls returns a copy of the recorded invocations
func (f *FakeRunner) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Spec(nil), f.calls...)
}
