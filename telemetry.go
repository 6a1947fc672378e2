package taskhive

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/UniQw/taskhive"

type instruments struct {
	enqueued  metric.Int64Counter
	processed metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) *instruments {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	nm := noop.Meter{}

	enq, err := m.Int64Counter("taskhive.tasks.enqueued",
		metric.WithDescription("Tasks made eligible for pickup"),
		metric.WithUnit("{task}"))
	if err != nil {
		enq, _ = nm.Int64Counter("taskhive.tasks.enqueued")
	}
	proc, err := m.Int64Counter("taskhive.tasks.processed",
		metric.WithDescription("Tasks executed by workers, by outcome"),
		metric.WithUnit("{task}"))
	if err != nil {
		proc, _ = nm.Int64Counter("taskhive.tasks.processed")
	}
	dur, err := m.Float64Histogram("taskhive.task.duration",
		metric.WithDescription("Job execution time"),
		metric.WithUnit("s"))
	if err != nil {
		dur, _ = nm.Float64Histogram("taskhive.task.duration")
	}
	return &instruments{enqueued: enq, processed: proc, duration: dur}
}

func (i *instruments) taskEnqueued(ctx context.Context, profile string) {
	i.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
}

func (i *instruments) taskProcessed(ctx context.Context, t *Task, outcome string, took time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("profile", t.profile),
		attribute.String("job", t.JobType),
		attribute.String("outcome", outcome),
	)
	i.processed.Add(ctx, 1, attrs)
	i.duration.Record(ctx, took.Seconds(), attrs)
}

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// startPerform opens the span that wraps one job execution.
func startPerform(ctx context.Context, tr trace.Tracer, t *Task) (context.Context, trace.Span) {
	return tr.Start(ctx, "taskhive.perform "+t.JobType, trace.WithAttributes(
		attribute.Int64("taskhive.task.id", t.ID),
		attribute.String("taskhive.job", t.JobType),
		attribute.String("taskhive.profile", t.profile),
	))
}

func endPerform(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
