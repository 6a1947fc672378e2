package taskhive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ikeys "github.com/UniQw/taskhive/internal/keys"
	"go.opentelemetry.io/otel/trace"
)

// Sentinel scores share the priority sets with real priorities and always sort below them:
// ScoreFailed < ScoreRunning < any valid priority.
const (
	// ScoreRunning marks a task reserved by a worker (running or success).
	ScoreRunning = 0
	// ScoreFailed marks a task that exhausted its retries.
	ScoreFailed = -1
)

// Queue is the queue engine. It is the only component that moves tasks between the
// scheduled set and the profile priority sets.
type Queue struct {
	store         Store
	keys          ikeys.Namespace
	enc           Encoder
	log           Logger
	now           func() time.Time
	maxRetries    int
	retryDelay    time.Duration
	finishedLimit int64
	metrics       *instruments
	tracer        trace.Tracer
}

// NewQueue creates a queue engine over store.
func NewQueue(store Store, opts ...QueueOption) *Queue {
	o := &queueOptions{
		namespace:  DefaultNamespace,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		clock:      time.Now,
		logger:     nopLogger{},
		encoder:    &JSONEncoder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Queue{
		store:         store,
		keys:          ikeys.For(o.namespace),
		enc:           o.encoder,
		log:           o.logger,
		now:           o.clock,
		maxRetries:    o.maxRetries,
		retryDelay:    o.retryDelay,
		finishedLimit: o.finishedLimit,
		metrics:       newInstruments(o.meterProvider),
		tracer:        newTracer(o.tracerProvider),
	}
}

// Logger returns the queue logger.
func (q *Queue) Logger() Logger { return q.log }

// Enqueue makes t eligible for pickup, or schedules it if ScheduledAt lies in the future.
// A previously scheduled task leaves the scheduled set in the same batch. A task seen for the first time gets a store id and, if it has a parent, counts as one of
// the parent's live children.
func (q *Queue) Enqueue(ctx context.Context, t *Task) error {
	if !t.ScheduledAt.IsZero() && t.ScheduledAt.After(q.now()) {
		return q.Schedule(ctx, t, t.ScheduledAt)
	}
	fresh, err := q.assignID(ctx, t)
	if err != nil {
		return err
	}
	prev := t.status
	t.status = StatusWaiting
	data, err := encodeTask(q.enc, t)
	if err != nil {
		t.status = prev
		q.releaseID(t, fresh)
		return err
	}
	err = q.store.Pipeline(ctx, func(b Batch) error {
		if !fresh {
			b.Del(q.keys.ScheduledTask(t.ID))
			b.ZRem(q.keys.Scheduled, ikeys.Member(t.ID))
		}
		q.activate(b, t, data)
		if fresh && t.ParentID != 0 {
			b.IncrBy(q.keys.Children(t.ParentID), 1)
		}
		return nil
	})
	if err != nil {
		t.status = prev
		q.releaseID(t, fresh)
		return fmt.Errorf("enqueue task: %w", err)
	}
	t.stored = StatusWaiting
	q.metrics.taskEnqueued(ctx, t.profile)
	q.log.Debugf("enqueued: id=%d job=%s profile=%s priority=%d", t.ID, t.JobType, t.profile, t.priority)
	return q.informParent(ctx, t)
}

// Schedule holds t out of the active sets until when.
func (q *Queue) Schedule(ctx context.Context, t *Task, when time.Time) error {
	fresh, err := q.assignID(ctx, t)
	if err != nil {
		return err
	}
	prevStatus, prevAt := t.status, t.ScheduledAt
	t.status = StatusPending
	t.ScheduledAt = truncMillis(when)
	data, err := encodeTask(q.enc, t)
	if err != nil {
		t.status, t.ScheduledAt = prevStatus, prevAt
		q.releaseID(t, fresh)
		return err
	}
	m := ikeys.Member(t.ID)
	err = q.store.Pipeline(ctx, func(b Batch) error {
		b.Set(q.keys.ScheduledTask(t.ID), data)
		b.ZAdd(q.keys.Scheduled, m, float64(t.ScheduledAt.UnixMilli()))
		b.Del(q.keys.Task(t.ID))
		b.ZRem(q.keys.Profile(t.profile), m)
		b.ZRem(q.keys.Common, m)
		if fresh && t.ParentID != 0 {
			b.IncrBy(q.keys.Children(t.ParentID), 1)
		}
		return nil
	})
	if err != nil {
		t.status, t.ScheduledAt = prevStatus, prevAt
		q.releaseID(t, fresh)
		return fmt.Errorf("schedule task %d: %w", t.ID, err)
	}
	t.stored = StatusPending
	q.log.Debugf("scheduled: id=%d job=%s at=%s", t.ID, t.JobType, t.ScheduledAt.Format(time.RFC3339))
	return q.informParent(ctx, t)
}

// Unschedule moves a scheduled task into the active sets in one batch.
func (q *Queue) Unschedule(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	prevStatus, prevAt := t.status, t.ScheduledAt
	if t.ScheduledAt.After(q.now()) {
		t.ScheduledAt = time.Time{}
	}
	t.status = StatusWaiting
	data, err := encodeTask(q.enc, t)
	if err != nil {
		t.status, t.ScheduledAt = prevStatus, prevAt
		return err
	}
	err = q.store.Pipeline(ctx, func(b Batch) error {
		b.Del(q.keys.ScheduledTask(t.ID))
		b.ZRem(q.keys.Scheduled, ikeys.Member(t.ID))
		q.activate(b, t, data)
		return nil
	})
	if err != nil {
		t.status, t.ScheduledAt = prevStatus, prevAt
		return fmt.Errorf("unschedule task %d: %w", t.ID, err)
	}
	t.stored = StatusWaiting
	q.metrics.taskEnqueued(ctx, t.profile)
	q.log.Debugf("unscheduled: id=%d profile=%s", t.ID, t.profile)
	return q.informParent(ctx, t)
}

// PromoteDue unschedules every scheduled task whose due time has passed.
// Each entry is leased before it is moved so concurrent promoters never move it twice.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := q.now()
	due, err := q.store.ZRangeByScore(ctx, q.keys.Scheduled, negInf, float64(now.UnixMilli()), false)
	if err != nil {
		return 0, fmt.Errorf("read scheduled: %w", err)
	}
	moved := 0
	for _, e := range due {
		id, err := ikeys.ParseMember(e.Member)
		if err != nil {
			_ = q.store.ZRem(ctx, q.keys.Scheduled, e.Member)
			continue
		}
		lease := float64(now.Add(promoteLease).UnixMilli())
		ok, err := q.store.ZSwapScore(ctx, []string{q.keys.Scheduled}, e.Member, negInf, float64(now.UnixMilli()), lease)
		if err != nil {
			return moved, fmt.Errorf("lease scheduled task %d: %w", id, err)
		}
		if !ok {
			continue
		}
		data, err := q.store.Get(ctx, q.keys.ScheduledTask(id))
		if errors.Is(err, ErrKeyNotFound) {
			q.log.Warnf("scheduled entry without record: id=%d", id)
			_ = q.store.ZRem(ctx, q.keys.Scheduled, e.Member)
			continue
		}
		if err != nil {
			return moved, fmt.Errorf("load scheduled task %d: %w", id, err)
		}
		t, err := decodeTask(q.enc, data)
		if err != nil {
			q.log.Errorf("dropping undecodable scheduled task: id=%d err=%v", id, err)
			if err := q.dropScheduled(ctx, id); err != nil {
				return moved, err
			}
			continue
		}
		if err := q.Unschedule(ctx, t); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// dropScheduled removes a scheduled entry and its record.
func (q *Queue) dropScheduled(ctx context.Context, id int64) error {
	err := q.store.Pipeline(ctx, func(b Batch) error {
		b.Del(q.keys.ScheduledTask(id))
		b.ZRem(q.keys.Scheduled, ikeys.Member(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop scheduled task %d: %w", id, err)
	}
	return nil
}

// Reserve re-scores t to the running sentinel and marks it running. Only tasks currently
// waiting or running can be reserved.
func (q *Queue) Reserve(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	ok, err := q.swap(ctx, t, ScoreRunning, posInf, ScoreRunning)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotReservable
	}
	return q.markRunning(ctx, t)
}

// Claim is the exclusive form of Reserve used by workers: it only succeeds while t is
// still in the priority range, so of several workers that fetched t exactly one wins.
func (q *Queue) Claim(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	ok, err := q.swap(ctx, t, 1, posInf, ScoreRunning)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTaskTaken
	}
	return q.markRunning(ctx, t)
}

func (q *Queue) markRunning(ctx context.Context, t *Task) error {
	if err := t.SetStatus(StatusRunning); err != nil {
		return err
	}
	t.StartedAt = truncMillis(q.now())
	return q.Update(ctx, t)
}

func (q *Queue) swap(ctx context.Context, t *Task, min, max, score float64) (bool, error) {
	keys := []string{q.keys.Common, q.keys.Profile(t.profile)}
	ok, err := q.store.ZSwapScore(ctx, keys, ikeys.Member(t.ID), min, max, score)
	if err != nil {
		return false, fmt.Errorf("rescore task %d: %w", t.ID, err)
	}
	return ok, nil
}

// GetTask resolves id from the active records, the scheduled records, or the finished log.
// A finished task comes back as a placeholder carrying only its id.
func (q *Queue) GetTask(ctx context.Context, id int64) (*Task, error) {
	for _, key := range []string{q.keys.Task(id), q.keys.ScheduledTask(id)} {
		data, err := q.store.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load task %d: %w", id, err)
		}
		return decodeTask(q.enc, data)
	}
	ids, err := q.store.LRange(ctx, q.keys.Finished, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read finished log: %w", err)
	}
	m := ikeys.Member(id)
	for _, f := range ids {
		if f == m {
			return finishedPlaceholder(id), nil
		}
	}
	return nil, ErrTaskNotFound
}

// LiveChildren returns the number of enqueued children of id that have not finished.
func (q *Queue) LiveChildren(ctx context.Context, id int64) (int64, error) {
	data, err := q.store.Get(ctx, q.keys.Children(id))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse child counter of task %d: %w", id, err)
	}
	return n, nil
}

// EnqueueChildren stamps and enqueues every attached child of t that has not been
// submitted yet, then finishes t if it succeeded and no child is left alive.
// It returns the number of children enqueued. On error the children already enqueued stay
// counted, t is marked as having unsubmitted children so it cannot finish, and the rest
// are submitted by calling EnqueueChildren again or by RecoverStale.
func (q *Queue) EnqueueChildren(ctx context.Context, t *Task) (n int, err error) {
	if t.ID == 0 {
		return 0, ErrNotPersisted
	}
	// Hold one extra count while children go out so a fast child cannot finish t early.
	guard := q.keys.Children(t.ID)
	if _, err := q.store.IncrBy(ctx, guard, 1); err != nil {
		return 0, fmt.Errorf("guard children of task %d: %w", t.ID, err)
	}
	defer func() {
		if err != nil {
			q.syncChildIDs(ctx, t)
			if serr := q.store.Set(ctx, q.keys.Unsubmitted(t.ID), []byte("1")); serr != nil {
				q.log.Errorf("mark unsubmitted children failed: id=%d err=%v", t.ID, serr)
			}
		} else if derr := q.store.Del(ctx, q.keys.Unsubmitted(t.ID)); derr != nil {
			err = fmt.Errorf("clear unsubmitted mark of task %d: %w", t.ID, derr)
		}
		if derr := q.childDone(ctx, t.ID); derr != nil && err == nil {
			err = derr
		}
	}()
	for _, c := range t.Children() {
		if c.ID != 0 {
			continue
		}
		c.ParentID = t.ID
		if err := q.Enqueue(ctx, c); err != nil {
			if c.ID != 0 {
				t.UpdateChild(c)
				n++
			}
			return n, fmt.Errorf("enqueue child %s of task %d: %w", c.Tag, t.ID, err)
		}
		t.UpdateChild(c)
		n++
	}
	return n, nil
}

// syncChildIDs copies the ids of t's submitted children into its stored record, so a
// child whose own batch committed is never taken for unsubmitted.
func (q *Queue) syncChildIDs(ctx context.Context, t *Task) {
	p, err := q.GetTask(ctx, t.ID)
	if err != nil {
		q.log.Warnf("sync child ids failed: id=%d err=%v", t.ID, err)
		return
	}
	if p.status == StatusFinished {
		return
	}
	dirty := false
	for _, c := range t.children {
		if c.ID == 0 {
			continue
		}
		if ex, ok := p.Child(c.Tag); ok && ex.ID == 0 {
			p.AddChild(c.Clone())
			dirty = true
		}
	}
	if !dirty {
		return
	}
	if err := q.Update(ctx, p); err != nil {
		q.log.Warnf("sync child ids failed: id=%d err=%v", t.ID, err)
	}
}

func (q *Queue) assignID(ctx context.Context, t *Task) (bool, error) {
	if t.ID != 0 {
		return false, nil
	}
	id, err := q.store.IncrBy(ctx, q.keys.Counter, 1)
	if err != nil {
		return false, fmt.Errorf("assign task id: %w", err)
	}
	t.ID = id
	for _, c := range t.children {
		c.ParentID = id
	}
	return true, nil
}

func (q *Queue) releaseID(t *Task, fresh bool) {
	if !fresh {
		return
	}
	t.ID = 0
	for _, c := range t.children {
		c.ParentID = 0
	}
}

// activate writes the active record and indexes it at its priority.
func (q *Queue) activate(b Batch, t *Task, data []byte) {
	m := ikeys.Member(t.ID)
	b.Set(q.keys.Task(t.ID), data)
	b.ZAdd(q.keys.Profile(t.profile), m, float64(t.priority))
	b.ZAdd(q.keys.Common, m, float64(t.priority))
}

func (q *Queue) loadActive(ctx context.Context, id int64) (*Task, error) {
	data, err := q.store.Get(ctx, q.keys.Task(id))
	if err != nil {
		return nil, err
	}
	return decodeTask(q.enc, data)
}

func finishedPlaceholder(id int64) *Task {
	return &Task{
		ID:       id,
		Options:  Bag{},
		Params:   Bag{},
		status:   StatusFinished,
		stored:   StatusFinished,
		progress: 1,
	}
}
