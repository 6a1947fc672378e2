package taskhive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	ikeys "github.com/UniQw/taskhive/internal/keys"
	"github.com/google/uuid"
)

var (
	posInf = math.Inf(1)
	negInf = math.Inf(-1)
)

// GetNextTask returns the oldest task of the highest priority among the given profiles,
// or among all profiles when none is given. It returns ErrNoTask when nothing is eligible.
// The task is not reserved; callers claim it before executing it.
func (q *Queue) GetNextTask(ctx context.Context, profiles ...string) (*Task, error) {
	if _, err := q.PromoteDue(ctx); err != nil {
		return nil, err
	}

	key, transient, err := q.candidateKey(ctx, profiles)
	if err != nil {
		return nil, err
	}
	entries, err := q.store.ZRangeByScore(ctx, key, 1, posInf, true)
	if transient {
		if derr := q.store.Del(ctx, key); derr != nil {
			q.log.Warnf("union cleanup failed: key=%s err=%v", key, derr)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}

	for _, id := range q.fifoOrder(entries) {
		t, err := q.loadActive(ctx, id)
		if errors.Is(err, ErrKeyNotFound) {
			// Finished or removed between the read and the load.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load task %d: %w", id, err)
		}
		return t, nil
	}
	return nil, ErrNoTask
}

// candidateKey picks the set to read from. Several profiles are merged into a transient key
// which the caller must delete.
func (q *Queue) candidateKey(ctx context.Context, profiles []string) (string, bool, error) {
	switch len(profiles) {
	case 0:
		return q.keys.Common, false, nil
	case 1:
		return q.keys.Profile(profiles[0]), false, nil
	}
	srcs := make([]string, 0, len(profiles))
	for _, p := range profiles {
		srcs = append(srcs, q.keys.Profile(p))
	}
	dst := q.keys.Union(uuid.NewString())
	if err := q.store.ZUnionStore(ctx, dst, srcs...); err != nil {
		return "", false, fmt.Errorf("merge profiles: %w", err)
	}
	return dst, true, nil
}

// fifoOrder turns score-ordered entries into fetch order. Sorted sets do not keep insertion
// order among equal scores, so each score tier is re-sorted by id, which the store hands out
// in enqueue order.
func (q *Queue) fifoOrder(entries []ScoredMember) []int64 {
	out := make([]int64, 0, len(entries))
	for i := 0; i < len(entries); {
		top := entries[i].Score
		tier := make([]int64, 0, 4)
		for ; i < len(entries) && entries[i].Score == top; i++ {
			id, err := ikeys.ParseMember(entries[i].Member)
			if err != nil {
				q.log.Warnf("dropping malformed member: member=%q", entries[i].Member)
				continue
			}
			tier = append(tier, id)
		}
		slices.Sort(tier)
		out = append(out, tier...)
	}
	return out
}
