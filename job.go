package taskhive

import "context"

// Job is the unit of work a task executes. Implementations are owned by callers;
// the queue engine only stores their type identifier, options and parameters.
type Job interface {
	// Type is the identifier the job is registered under.
	Type() string
	// Perform does the work. A non-nil error marks the task failed.
	Perform(ctx context.Context, t *Task) error
}

// SetupHook is implemented by jobs that need to prepare before Perform.
type SetupHook interface {
	Setup(ctx context.Context, t *Task) error
}

// TeardownHook is implemented by jobs that need to clean up after Perform.
// It runs whenever Setup succeeded, even if Perform failed.
type TeardownHook interface {
	Teardown(ctx context.Context, t *Task) error
}

// Requirements is implemented by jobs that declare mandatory option and parameter keys.
type Requirements interface {
	RequiredOptions() []string
	RequiredParams() []string
}

// JobEnv is what a worker hands to a job before execution.
type JobEnv struct {
	Task    *Task
	Options Bag
	Params  Bag
	Queue   *Queue
	Logger  Logger
}

// Configurer is implemented by jobs that want their environment injected before Setup.
type Configurer interface {
	Configure(env JobEnv) error
}

// JobFunc adapts a plain function into a Job.
type JobFunc struct {
	Name string
	Fn   func(ctx context.Context, t *Task) error
}

// Type returns the registered name.
func (j JobFunc) Type() string { return j.Name }

// Perform calls Fn.
func (j JobFunc) Perform(ctx context.Context, t *Task) error { return j.Fn(ctx, t) }

// checkRequirements validates options and params against what the job declares.
func checkRequirements(j Job, options, params Bag) error {
	req, ok := j.(Requirements)
	if !ok {
		return nil
	}
	if k, miss := options.missing(req.RequiredOptions()); miss {
		return wrapKey(ErrMissingOption, k)
	}
	if k, miss := params.missing(req.RequiredParams()); miss {
		return wrapKey(ErrMissingParam, k)
	}
	return nil
}
