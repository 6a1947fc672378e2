package taskhive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PerformFunc is the signature of Job.Perform.
type PerformFunc func(ctx context.Context, t *Task) error

// Middleware wraps a PerformFunc to provide cross-cutting concerns.
type Middleware func(PerformFunc) PerformFunc

// JobFactory builds a fresh job instance for one execution.
type JobFactory func() Job

// Registry maps job type identifiers to factories. Workers use it to turn a persisted
// type identifier back into a job; the queue engine never sees it.
type Registry struct {
	mu          sync.RWMutex
	factories   map[string]JobFactory
	middlewares []Middleware
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:   make(map[string]JobFactory),
		middlewares: []Middleware{},
	}
}

// Register binds jobType to a factory, replacing any previous binding.
func (r *Registry) Register(jobType string, f JobFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[jobType] = f
}

// RegisterFunc binds jobType to a stateless function job.
func (r *Registry) RegisterFunc(jobType string, fn func(ctx context.Context, t *Task) error) {
	r.Register(jobType, func() Job { return JobFunc{Name: jobType, Fn: fn} })
}

// Use adds middleware(s) around Perform. Middlewares are executed in the order they are added.
func (r *Registry) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// New instantiates the job registered under jobType.
func (r *Registry) New(jobType string) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[jobType]
	r.mu.RUnlock()
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, jobType)
	}
	return f(), nil
}

// Types lists the registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) wrap(h PerformFunc) PerformFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}
