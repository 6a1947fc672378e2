package taskhive

import (
	"context"
	"fmt"
)

// FlagAction is an operator action applied to a task by id.
type FlagAction string

const (
	// FlagRequeue forces the task back to waiting.
	FlagRequeue FlagAction = "requeue"
	// FlagFail gives the task up without further retries.
	FlagFail FlagAction = "fail"
	// FlagFinish marks the task finished, releasing its parent.
	FlagFinish FlagAction = "finish"
	// FlagRemove deletes the task and its descendants.
	FlagRemove FlagAction = "remove"
)

// Flag applies action to the task with the given id.
func (q *Queue) Flag(ctx context.Context, id int64, action FlagAction) error {
	switch action {
	case FlagRequeue, FlagFail, FlagFinish, FlagRemove:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if action == FlagRequeue {
		return q.Requeue(ctx, id)
	}

	t, err := q.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.status == StatusFinished {
		return fmt.Errorf("%w: task %d already finished", ErrInvalidTransition, id)
	}
	q.log.Infof("flag: id=%d action=%s", id, action)
	switch action {
	case FlagFail:
		return q.GiveUp(ctx, t)
	case FlagFinish:
		t.status = StatusFinished
		return q.Update(ctx, t)
	default:
		return q.Remove(ctx, t, true)
	}
}
