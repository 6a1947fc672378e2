package taskhive

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultNamespace groups every key of a queue.
	DefaultNamespace = "default"
	// DefaultMaxRetries bounds the number of failed attempts before a task is given up.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the backoff window before a failed task becomes eligible again.
	DefaultRetryDelay = 10 * time.Second
	// promoteLease hides a scheduled entry from other promoters while one of them moves it.
	promoteLease = 30 * time.Second
)

type queueOptions struct {
	namespace      string
	maxRetries     int
	retryDelay     time.Duration
	clock          func() time.Time
	logger         Logger
	encoder        Encoder
	finishedLimit  int64
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// QueueOption configures a Queue.
type QueueOption func(*queueOptions)

// WithNamespace isolates the queue's keys from other queues sharing the store.
func WithNamespace(ns string) QueueOption {
	return func(o *queueOptions) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithMaxRetries sets how many failures a task may accumulate. The failure that reaches
// n moves the task to the failed set for good; earlier failures are rescheduled.
func WithMaxRetries(n int) QueueOption {
	return func(o *queueOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed backoff applied to a failed task before it runs again.
func WithRetryDelay(d time.Duration) QueueOption {
	return func(o *queueOptions) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithClock replaces time.Now as the source of due times.
func WithClock(now func() time.Time) QueueOption {
	return func(o *queueOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l Logger) QueueOption {
	return func(o *queueOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEncoder replaces the record encoder.
func WithEncoder(e Encoder) QueueOption {
	return func(o *queueOptions) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithFinishedLogLimit keeps only the newest n ids in the finished log. Zero keeps everything.
func WithFinishedLogLimit(n int64) QueueOption {
	return func(o *queueOptions) {
		if n >= 0 {
			o.finishedLimit = n
		}
	}
}

// WithMeterProvider records queue and worker metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) QueueOption {
	return func(o *queueOptions) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider traces job executions on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) QueueOption {
	return func(o *queueOptions) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

type workerOptions struct {
	profiles     []string
	idleInterval time.Duration
	busyPause    time.Duration
	startJitter  time.Duration
	logger       Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

// WithProfiles restricts the worker to tasks of the given profiles. No profiles means all.
func WithProfiles(profiles ...string) WorkerOption {
	return func(o *workerOptions) {
		o.profiles = append([]string(nil), profiles...)
	}
}

// WithIdleInterval sets the sleep after an empty poll or a store error.
func WithIdleInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.idleInterval = d
		}
	}
}

// WithBusyPause sets the pause after each processed task.
func WithBusyPause(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d >= 0 {
			o.busyPause = d
		}
	}
}

// WithStartJitter bounds the random delay before the first poll.
func WithStartJitter(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d >= 0 {
			o.startJitter = d
		}
	}
}

// WithWorkerLogger sets the worker logger; it defaults to the queue's.
func WithWorkerLogger(l Logger) WorkerOption {
	return func(o *workerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
