package taskhive

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	ikeys "github.com/UniQw/taskhive/internal/keys"
)

// SortField selects the dimension ListTasks orders by.
type SortField string

const (
	SortByID       SortField = "id"
	SortByPriority SortField = "priority"
	SortByProfile  SortField = "profile"
	SortByStatus   SortField = "status"
	SortByCreated  SortField = "created_at"
	SortByProgress SortField = "progress"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ListQuery filters and orders ListTasks. Zero values mean "any" and sort by id ascending.
type ListQuery struct {
	SortBy   SortField
	Order    SortOrder
	Priority int
	Profile  string
	Status   Status
}

// ListTasks is the audit view over every set the engine maintains. It is not meant for
// the execution path.
func (q *Queue) ListTasks(ctx context.Context, lq ListQuery) ([]*Task, error) {
	if lq.SortBy == "" {
		lq.SortBy = SortByID
	}
	if lq.Order == "" {
		lq.Order = Asc
	}
	less, err := comparator(lq.SortBy)
	if err != nil {
		return nil, err
	}
	if lq.Order != Asc && lq.Order != Desc {
		return nil, fmt.Errorf("%w: order %q", ErrInvalidQuery, lq.Order)
	}
	if lq.Status != "" && !lq.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	want := func(s Status) bool { return lq.Status == "" || lq.Status == s }
	setKey := q.keys.Common
	if lq.Profile != "" {
		setKey = q.keys.Profile(lq.Profile)
	}

	var out []*Task
	collect := func(min, max float64) error {
		entries, err := q.store.ZRangeByScore(ctx, setKey, min, max, false)
		if err != nil {
			return err
		}
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
				return err
			}
			if want(t.status) {
				out = append(out, t)
			}
		}
		return nil
	}

	if want(StatusWaiting) {
		if err := collect(1, posInf); err != nil {
			return nil, fmt.Errorf("list waiting: %w", err)
		}
	}
	if want(StatusRunning) || want(StatusSuccess) {
		if err := collect(ScoreRunning, ScoreRunning); err != nil {
			return nil, fmt.Errorf("list running: %w", err)
		}
	}
	if want(StatusFailed) {
		if err := collect(ScoreFailed, ScoreFailed); err != nil {
			return nil, fmt.Errorf("list failed: %w", err)
		}
	}
	if want(StatusPending) {
		entries, err := q.store.ZRangeByScore(ctx, q.keys.Scheduled, negInf, posInf, false)
		if err != nil {
			return nil, fmt.Errorf("list scheduled: %w", err)
		}
		for _, e := range entries {
			id, err := ikeys.ParseMember(e.Member)
			if err != nil {
				continue
			}
			data, err := q.store.Get(ctx, q.keys.ScheduledTask(id))
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("list scheduled: %w", err)
			}
			t, err := decodeTask(q.enc, data)
			if err != nil {
				q.log.Warnf("decode scheduled task failed: id=%d err=%v", id, err)
				continue
			}
			if lq.Profile == "" || t.profile == lq.Profile {
				out = append(out, t)
			}
		}
	}
	if want(StatusFinished) && lq.Profile == "" {
		ids, err := q.store.LRange(ctx, q.keys.Finished, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("list finished: %w", err)
		}
		for _, m := range ids {
			if id, err := ikeys.ParseMember(m); err == nil {
				out = append(out, finishedPlaceholder(id))
			}
		}
	}

	if lq.Priority > 0 {
		out = slices.DeleteFunc(out, func(t *Task) bool { return t.priority != lq.Priority })
	}
	slices.SortStableFunc(out, func(a, b *Task) int {
		c := less(a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if lq.Order == Desc {
			return -c
		}
		return c
	})
	return out, nil
}

func comparator(f SortField) (func(a, b *Task) int, error) {
	switch f {
	case SortByID:
		return func(a, b *Task) int { return cmp.Compare(a.ID, b.ID) }, nil
	case SortByPriority:
		return func(a, b *Task) int { return cmp.Compare(a.priority, b.priority) }, nil
	case SortByProfile:
		return func(a, b *Task) int { return cmp.Compare(a.profile, b.profile) }, nil
	case SortByStatus:
		return func(a, b *Task) int { return cmp.Compare(statusRank(a.status), statusRank(b.status)) }, nil
	case SortByCreated:
		return func(a, b *Task) int { return a.CreatedAt.Compare(b.CreatedAt) }, nil
	case SortByProgress:
		return func(a, b *Task) int { return cmp.Compare(a.Progress(), b.Progress()) }, nil
	}
	return nil, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, f)
}

func statusRank(s Status) int {
	return slices.Index(AllStatuses, s)
}
