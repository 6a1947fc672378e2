package taskhive

import (
	"context"
	"errors"
	"fmt"
	"time"

	ikeys "github.com/UniQw/taskhive/internal/keys"
)

// Update persists t and, when its status differs from the stored one, performs the
// matching set transition:
//
//	running  -> reserve (re-score to ScoreRunning)
//	waiting  -> re-score to the task priority (unscheduling it if needed)
//	success  -> progress set to 1, membership unchanged
//	failed   -> reschedule after the retry delay, or give up at the retry limit
//	finished -> drop every trace, log the id and release the parent
//
// A task with a parent first pushes its new state into the parent record.
func (q *Queue) Update(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	changed := t.status != t.stored
	if changed {
		switch t.status {
		case StatusSuccess:
			t.progress = 1
		case StatusFinished:
			live, err := q.LiveChildren(ctx, t.ID)
			if err != nil {
				return err
			}
			if live > 0 {
				return fmt.Errorf("%w: task %d has %d live children", ErrInvalidTransition, t.ID, live)
			}
			t.progress = 1
		case StatusPending:
			return fmt.Errorf("%w: %s -> %s, use Schedule", ErrInvalidTransition, t.stored, t.status)
		}
	}
	if err := q.informParent(ctx, t); err != nil {
		return err
	}
	if !changed {
		return q.persist(ctx, t)
	}

	switch t.status {
	case StatusRunning:
		ok, err := q.swap(ctx, t, ScoreRunning, posInf, ScoreRunning)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotReservable
		}
		return q.persist(ctx, t)
	case StatusWaiting:
		return q.requeue(ctx, t)
	case StatusSuccess:
		return q.persist(ctx, t)
	case StatusFailed:
		return q.fail(ctx, t)
	case StatusFinished:
		return q.finish(ctx, t)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.stored, t.status)
}

// persist writes the record where its current status lives.
func (q *Queue) persist(ctx context.Context, t *Task) error {
	if t.status == StatusFinished {
		return nil
	}
	data, err := encodeTask(q.enc, t)
	if err != nil {
		return err
	}
	key := q.keys.Task(t.ID)
	if t.status == StatusPending {
		key = q.keys.ScheduledTask(t.ID)
	}
	if err := q.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("persist task %d: %w", t.ID, err)
	}
	t.stored = t.status
	return nil
}

// informParent refreshes the parent's copy of t and persists the parent, which in turn
// informs its own parent.
func (q *Queue) informParent(ctx context.Context, t *Task) error {
	if t.ParentID == 0 {
		return nil
	}
	p, err := q.GetTask(ctx, t.ParentID)
	if errors.Is(err, ErrTaskNotFound) {
		q.log.Warnf("parent missing: id=%d parent=%d", t.ID, t.ParentID)
		return nil
	}
	if err != nil {
		return err
	}
	if p.status == StatusFinished {
		return nil
	}
	p.AddChild(t.Clone())
	return q.Update(ctx, p)
}

func (q *Queue) requeue(ctx context.Context, t *Task) error {
	if t.stored == StatusPending {
		return q.Unschedule(ctx, t)
	}
	data, err := encodeTask(q.enc, t)
	if err != nil {
		return err
	}
	err = q.store.Pipeline(ctx, func(b Batch) error {
		q.activate(b, t, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue task %d: %w", t.ID, err)
	}
	t.stored = StatusWaiting
	q.metrics.taskEnqueued(ctx, t.profile)
	return nil
}

// fail counts the failure and either reschedules t or parks it in the failed set.
func (q *Queue) fail(ctx context.Context, t *Task) error {
	n, err := q.store.IncrBy(ctx, q.keys.Failures(t.ID), 1)
	if err != nil {
		return fmt.Errorf("count failure of task %d: %w", t.ID, err)
	}
	if n < int64(q.maxRetries) {
		q.log.Warnf("retrying: id=%d job=%s attempt=%d max=%d in=%s", t.ID, t.JobType, n, q.maxRetries, q.retryDelay)
		return q.Schedule(ctx, t, q.now().Add(q.retryDelay))
	}
	q.log.Warnf("giving up: id=%d job=%s attempts=%d", t.ID, t.JobType, n)
	return q.bury(ctx, t)
}

// bury re-scores t to ScoreFailed. It stays listed but is never fetched again.
func (q *Queue) bury(ctx context.Context, t *Task) error {
	t.status = StatusFailed
	data, err := encodeTask(q.enc, t)
	if err != nil {
		return err
	}
	m := ikeys.Member(t.ID)
	err = q.store.Pipeline(ctx, func(b Batch) error {
		b.Set(q.keys.Task(t.ID), data)
		b.Del(q.keys.ScheduledTask(t.ID), q.keys.Failures(t.ID))
		b.ZRem(q.keys.Scheduled, m)
		b.ZAdd(q.keys.Profile(t.profile), m, ScoreFailed)
		b.ZAdd(q.keys.Common, m, ScoreFailed)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail task %d: %w", t.ID, err)
	}
	t.stored = StatusFailed
	return nil
}

// GiveUp marks t failed without going through the retry budget.
func (q *Queue) GiveUp(ctx context.Context, t *Task) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	t.status = StatusFailed
	if err := q.informParent(ctx, t); err != nil {
		return err
	}
	return q.bury(ctx, t)
}

// finish removes every trace of t, records its id and releases its parent.
func (q *Queue) finish(ctx context.Context, t *Task) error {
	m := ikeys.Member(t.ID)
	err := q.store.Pipeline(ctx, func(b Batch) error {
		b.Del(q.keys.Task(t.ID), q.keys.ScheduledTask(t.ID), q.keys.Failures(t.ID), q.keys.Children(t.ID), q.keys.Unsubmitted(t.ID))
		b.ZRem(q.keys.Profile(t.profile), m)
		b.ZRem(q.keys.Common, m)
		b.ZRem(q.keys.Scheduled, m)
		b.RPush(q.keys.Finished, m)
		if q.finishedLimit > 0 {
			b.LTrim(q.keys.Finished, -q.finishedLimit, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finish task %d: %w", t.ID, err)
	}
	t.stored = StatusFinished
	q.log.Debugf("finished: id=%d job=%s", t.ID, t.JobType)
	if t.ParentID == 0 {
		return nil
	}
	return q.childDone(ctx, t.ParentID)
}

// childDone drops one live child of parentID and finishes the parent once none is left,
// provided the parent's own job already succeeded and no child is left unsubmitted.
func (q *Queue) childDone(ctx context.Context, parentID int64) error {
	n, err := q.store.IncrBy(ctx, q.keys.Children(parentID), -1)
	if err != nil {
		return fmt.Errorf("release child of task %d: %w", parentID, err)
	}
	if n > 0 {
		return nil
	}
	p, err := q.GetTask(ctx, parentID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.status != StatusSuccess {
		return nil
	}
	if _, err := q.store.Get(ctx, q.keys.Unsubmitted(parentID)); err == nil {
		return nil
	} else if !errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("read unsubmitted mark of task %d: %w", parentID, err)
	}
	p.status = StatusFinished
	return q.Update(ctx, p)
}

// Remove deletes t and its submitted descendants. With cascade, the parent loses a live
// child and is finished if it was only waiting on t.
func (q *Queue) Remove(ctx context.Context, t *Task, cascade bool) error {
	if t.ID == 0 {
		return ErrNotPersisted
	}
	for _, c := range t.children {
		if c.ID == 0 {
			continue
		}
		fresh, err := q.GetTask(ctx, c.ID)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if fresh.status == StatusFinished {
			continue
		}
		if err := q.Remove(ctx, fresh, false); err != nil {
			return err
		}
	}

	m := ikeys.Member(t.ID)
	err := q.store.Pipeline(ctx, func(b Batch) error {
		b.Del(q.keys.Task(t.ID), q.keys.ScheduledTask(t.ID), q.keys.Failures(t.ID), q.keys.Children(t.ID), q.keys.Unsubmitted(t.ID))
		b.ZRem(q.keys.Profile(t.profile), m)
		b.ZRem(q.keys.Common, m)
		b.ZRem(q.keys.Scheduled, m)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove task %d: %w", t.ID, err)
	}
	q.log.Infof("removed: id=%d job=%s", t.ID, t.JobType)

	if !cascade || t.ParentID == 0 {
		return nil
	}
	p, err := q.GetTask(ctx, t.ParentID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.status == StatusFinished {
		return nil
	}
	p.RemoveChild(t.Tag)
	if err := q.Update(ctx, p); err != nil {
		return err
	}
	return q.childDone(ctx, p.ID)
}

// Requeue forces a task back to waiting. It is the recovery path for tasks left running
// by a worker that died, and for failed tasks an operator wants to retry.
func (q *Queue) Requeue(ctx context.Context, id int64) error {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.status == StatusFinished {
		return fmt.Errorf("%w: task %d already finished", ErrInvalidTransition, id)
	}
	if t.status == StatusFailed {
		if err := q.store.Del(ctx, q.keys.Failures(id)); err != nil {
			return err
		}
	}
	t.status = StatusWaiting
	t.StartedAt = time.Time{}
	return q.Update(ctx, t)
}

// RecoverStale requeues running tasks reserved longer than olderThan ago and resumes the
// child submission of succeeded tasks whose EnqueueChildren failed part way.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := q.store.ZRangeByScore(ctx, q.keys.Common, ScoreRunning, ScoreRunning, false)
	if err != nil {
		return 0, fmt.Errorf("read running: %w", err)
	}
	cutoff := q.now().Add(-olderThan)
	n := 0
	for _, e := range entries {
		id, err := ikeys.ParseMember(e.Member)
		if err != nil {
			continue
		}
		t, err := q.loadActive(ctx, id)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if t.StartedAt.After(cutoff) {
			continue
		}
		if t.status == StatusSuccess {
			resumed, err := q.resumeChildren(ctx, t)
			if err != nil {
				return n, err
			}
			if resumed {
				n++
			}
			continue
		}
		if t.status != StatusRunning {
			continue
		}
		q.log.Warnf("recovering stale task: id=%d job=%s started=%s", t.ID, t.JobType, t.StartedAt.Format(time.RFC3339))
		t.status = StatusWaiting
		t.StartedAt = time.Time{}
		if err := q.Update(ctx, t); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// resumeChildren submits the remaining children of a succeeded task marked unsubmitted.
func (q *Queue) resumeChildren(ctx context.Context, t *Task) (bool, error) {
	_, err := q.store.Get(ctx, q.keys.Unsubmitted(t.ID))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read unsubmitted mark of task %d: %w", t.ID, err)
	}
	q.log.Warnf("resuming child submission: id=%d job=%s", t.ID, t.JobType)
	if _, err := q.EnqueueChildren(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}
