package hctx

import "context"

// State holds per-execution hooks the worker exposes to the running job.
type State struct {
	// TaskID is the id of the task being executed.
	TaskID int64
	// Report persists the task's own progress.
	Report func(p float64) error
}

// New creates a state for the given task.
func New(taskID int64, report func(float64) error) *State {
	return &State{TaskID: taskID, Report: report}
}

type ctxKey struct{}

// WithState returns a child context carrying the given state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
