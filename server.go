package taskhive

import (
	"context"
	"fmt"
	"sync"
	"time"

	rtm "github.com/UniQw/taskhive/internal/runtime"
)

// ServerConfig defines the configuration for a worker pool.
type ServerConfig struct {
	// Profiles restricts the workers to these profiles. Empty means every profile.
	Profiles []string
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// IdleInterval is the pause after an empty poll.
	IdleInterval time.Duration
	// BusyPause is the pause after each processed task.
	BusyPause time.Duration
	// StartJitter bounds the random delay before a worker's first poll.
	StartJitter time.Duration
	// MaintenanceInterval is how often due tasks are promoted and stale ones recovered.
	// Zero disables the maintenance loop; workers still promote on every poll.
	MaintenanceInterval time.Duration
	// RecoverAfter requeues running tasks whose worker went silent for this long.
	// Zero disables recovery.
	RecoverAfter time.Duration
	// Logger is the logger used for server events. Defaults to the queue logger.
	Logger Logger
}

// Server runs a pool of workers plus background maintenance over one queue.
type Server struct {
	rt      *rtm.Runtime
	q       *Queue
	workers []*Worker
	mu      sync.Mutex
	started bool
	log     Logger
}

// NewServer creates a worker pool that resolves jobs through reg.
func NewServer(q *Queue, reg *Registry, cfg ServerConfig) *Server {
	l := cfg.Logger
	if l == nil {
		l = q.Logger()
	}
	s := &Server{rt: rtm.New(rtLogger{Logger: l}), q: q, log: l}

	opts := []WorkerOption{
		WithProfiles(cfg.Profiles...),
		WithIdleInterval(cfg.IdleInterval),
		WithBusyPause(cfg.BusyPause),
		WithWorkerLogger(l),
	}
	if cfg.StartJitter > 0 {
		opts = append(opts, WithStartJitter(cfg.StartJitter))
	}
	for i := 0; i < cfg.Concurrency; i++ {
		w := NewWorker(q, reg, opts...)
		s.workers = append(s.workers, w)
		s.rt.Go(fmt.Sprintf("worker-%d", i), func(ctx context.Context) { _ = w.Run(ctx) })
	}

	s.rt.Every("promote", cfg.MaintenanceInterval, func(ctx context.Context) error {
		n, err := q.PromoteDue(ctx)
		if n > 0 {
			l.Debugf("promoted due tasks: n=%d", n)
		}
		return err
	})
	if cfg.RecoverAfter > 0 {
		s.rt.Every("recover", cfg.MaintenanceInterval, func(ctx context.Context) error {
			n, err := q.RecoverStale(ctx, cfg.RecoverAfter)
			if n > 0 {
				l.Warnf("recovered stale tasks: n=%d", n)
			}
			return err
		})
	}
	return s
}

// Workers returns the pool's workers.
func (s *Server) Workers() []*Worker {
	return append([]*Worker(nil), s.workers...)
}

// Start launches the workers and background maintenance routines.
// It is idempotent and non-blocking.
func (s *Server) Start() {
	s.mu.Lock()
	if s.started {
		s.log.Warnf("server already started; ignoring Start()")
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.log.Infof("starting server: concurrency=%d", len(s.workers))
	s.rt.Start()
}

// Stop shuts the server down, waiting for workers to finish their current task.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.log.Warnf("server not started; ignoring Stop()")
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	s.log.Infof("stopping server")
	s.rt.Stop()
}

// Run starts the server and blocks until ctx is done, then stops it.
func (s *Server) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// rtLogger adapts the public Logger to the internal runtime logger interface.
type rtLogger struct{ Logger }
