package taskhive

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/UniQw/taskhive/internal/hctx"
	"github.com/google/uuid"
)

// WorkerState is the worker's coarse state.
type WorkerState int32

const (
	// WorkerPaused means no task is held.
	WorkerPaused WorkerState = iota
	// WorkerBusy means a claimed task is executing.
	WorkerBusy
)

func (s WorkerState) String() string {
	if s == WorkerBusy {
		return "busy"
	}
	return "paused"
}

const (
	defaultIdleInterval = time.Second
	defaultBusyPause    = 10 * time.Millisecond
	defaultStartJitter  = 500 * time.Millisecond
)

// Worker polls the queue for tasks of its profiles and executes them one at a time.
type Worker struct {
	id       string
	q        *Queue
	reg      *Registry
	profiles []string
	idle     time.Duration
	pause    time.Duration
	jitter   time.Duration
	log      Logger
	state    atomic.Int32
}

// NewWorker creates a worker that resolves jobs through reg.
func NewWorker(q *Queue, reg *Registry, opts ...WorkerOption) *Worker {
	o := &workerOptions{
		idleInterval: defaultIdleInterval,
		busyPause:    defaultBusyPause,
		startJitter:  defaultStartJitter,
		logger:       q.log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Worker{
		id:       uuid.NewString(),
		q:        q,
		reg:      reg,
		profiles: o.profiles,
		idle:     o.idleInterval,
		pause:    o.busyPause,
		jitter:   o.startJitter,
		log:      o.logger,
	}
}

// ID returns the worker's random identifier.
func (w *Worker) ID() string { return w.id }

// State reports whether the worker currently holds a task.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// Run polls until ctx is cancelled. Cancellation is checked between tasks; a task that
// already started runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	if w.jitter > 0 && !sleepCtx(ctx, rand.N(w.jitter)) {
		return nil
	}
	w.log.Infof("worker started: id=%s profiles=%v", w.id, w.profiles)
	defer w.log.Infof("worker stopped: id=%s", w.id)
	for {
		if ctx.Err() != nil {
			return nil
		}
		worked, err := w.ProcessNext(ctx)
		wait := w.pause
		if err != nil {
			w.log.Errorf("poll failed: worker=%s err=%v", w.id, err)
			wait = w.idle
		} else if !worked {
			wait = w.idle
		}
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

// ProcessNext fetches, claims and executes at most one task. It reports whether a task
// was executed. Job failures are recorded on the task and never returned; the error is
// reserved for the store.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	t, err := w.q.GetNextTask(ctx, w.profiles...)
	if errors.Is(err, ErrNoTask) {
		w.state.Store(int32(WorkerPaused))
		return false, nil
	}
	if err != nil {
		w.state.Store(int32(WorkerPaused))
		return false, err
	}

	// The claim and everything after it must not be cut short by the caller's cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := w.q.Claim(ctx, t); err != nil {
		if errors.Is(err, ErrTaskTaken) {
			w.log.Debugf("lost claim: worker=%s id=%d", w.id, t.ID)
			return false, nil
		}
		return false, err
	}
	w.state.Store(int32(WorkerBusy))
	defer w.state.Store(int32(WorkerPaused))
	return true, w.execute(ctx, t)
}

func (w *Worker) execute(ctx context.Context, t *Task) error {
	start := time.Now()
	job, err := w.reg.New(t.JobType)
	if err == nil {
		err = t.SetJob(job)
	}
	if err != nil {
		w.log.Warnf("cannot run task: id=%d job=%s err=%v", t.ID, t.JobType, err)
		w.q.metrics.taskProcessed(ctx, t, "rejected", time.Since(start))
		return w.q.GiveUp(ctx, t)
	}

	w.log.Debugf("running: worker=%s id=%d job=%s profile=%s", w.id, t.ID, t.JobType, t.profile)
	spanCtx, span := startPerform(ctx, w.q.tracer, t)
	runErr := w.perform(spanCtx, job, t)
	endPerform(span, runErr)
	if runErr != nil {
		took := time.Since(start)
		w.log.Warnf("job error: id=%d job=%s dur=%s err=%v", t.ID, t.JobType, took, runErr)
		w.q.metrics.taskProcessed(ctx, t, "failed", took)
		_ = t.SetStatus(StatusFailed)
		return w.q.Update(ctx, t)
	}

	took := time.Since(start)
	w.q.metrics.taskProcessed(ctx, t, "success", took)
	_ = t.SetStatus(StatusSuccess)
	if err := w.q.Update(ctx, t); err != nil {
		return err
	}
	n, err := w.q.EnqueueChildren(ctx, t)
	if err != nil {
		return fmt.Errorf("enqueue children of task %d: %w", t.ID, err)
	}
	w.log.Debugf("processed: id=%d job=%s dur=%s children=%d", t.ID, t.JobType, took, n)
	return nil
}

// perform runs the job's hooks around Perform. A panic anywhere is reported as an error.
func (w *Worker) perform(ctx context.Context, job Job, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job: %v", r)
		}
	}()

	if c, ok := job.(Configurer); ok {
		env := JobEnv{Task: t, Options: t.Options, Params: t.Params, Queue: w.q, Logger: w.log}
		if err := c.Configure(env); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	if s, ok := job.(SetupHook); ok {
		if err := s.Setup(ctx, t); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	if td, ok := job.(TeardownHook); ok {
		defer func() {
			if terr := td.Teardown(ctx, t); terr != nil {
				w.log.Warnf("teardown failed: id=%d job=%s err=%v", t.ID, t.JobType, terr)
			}
		}()
	}

	st := hctx.New(t.ID, func(p float64) error {
		if err := t.SetProgress(p); err != nil {
			return err
		}
		return w.q.Update(ctx, t)
	})
	return w.reg.wrap(job.Perform)(hctx.WithState(ctx, st), t)
}

// sleepCtx waits for d or until ctx is done. It reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
