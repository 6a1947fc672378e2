package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// Loop is a long-running function that must return once ctx is done.
type Loop func(ctx context.Context)

// Tick is a periodic maintenance function.
type Tick func(ctx context.Context) error

type loop struct {
	name string
	fn   Loop
}

type ticker struct {
	name  string
	every time.Duration
	fn    Tick
}

// Runtime supervises worker loops and periodic maintenance goroutines.
type Runtime struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	started bool
	cancel  context.CancelFunc
	loops   []loop
	tickers []ticker
	log     Logger
}

// New creates an idle runtime.
func New(log Logger) *Runtime {
	if log == nil {
		log = noopLogger{}
	}
	return &Runtime{log: log}
}

// Go registers a loop started by Start.
func (rt *Runtime) Go(name string, fn Loop) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.loops = append(rt.loops, loop{name: name, fn: fn})
}

// Every registers fn to run every interval while the runtime is started.
func (rt *Runtime) Every(name string, every time.Duration, fn Tick) {
	if every <= 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.tickers = append(rt.tickers, ticker{name: name, every: every, fn: fn})
}

// Started reports whether Start has been called without a matching Stop.
func (rt *Runtime) Started() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.started
}

// Start launches every registered loop and ticker. It is idempotent and non-blocking.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.started {
		rt.log.Warnf("runtime already started; ignoring Start()")
		return
	}
	rt.started = true
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.log.Infof("runtime starting: loops=%d tickers=%d", len(rt.loops), len(rt.tickers))

	for _, l := range rt.loops {
		rt.wg.Add(1)
		go func(l loop) {
			defer rt.wg.Done()
			l.fn(ctx)
		}(l)
	}

	for _, tk := range rt.tickers {
		rt.wg.Add(1)
		go func(tk ticker) {
			defer rt.wg.Done()
			t := time.NewTicker(tk.every)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := tk.fn(ctx); err != nil && ctx.Err() == nil {
						rt.log.Warnf("%s: tick failed err=%v", tk.name, err)
					}
				}
			}
		}(tk)
	}
}

// Stop cancels the internal context and waits for all goroutines to exit.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.started {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.started = false
	cancel := rt.cancel
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	cancel()
	rt.wg.Wait()
}
