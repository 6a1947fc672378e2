package taskhive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ids(ts []*Task) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

// seedListing creates one task per status: waiting(1), running(2), failed(3), pending(4), finished(5), waiting(6).
func seedListing(t *testing.T) *Queue {
	t.Helper()
	q, _, clk := newTestQueue(t, WithMaxRetries(1))
	ctx := context.Background()

	mustEnqueue(t, q, "j", WithProfile("a"), WithPriority(2))

	running := mustEnqueue(t, q, "j", WithProfile("a"), WithPriority(5))
	require.NoError(t, q.Claim(ctx, running))

	failed := mustEnqueue(t, q, "j", WithProfile("b"), WithPriority(3))
	require.NoError(t, q.Claim(ctx, failed))
	require.NoError(t, failed.SetStatus(StatusFailed))
	require.NoError(t, q.Update(ctx, failed))

	mustEnqueue(t, q, "j", WithProfile("b"), WithPriority(2), WithScheduledAt(clk.Now().Add(time.Hour)))

	done := mustEnqueue(t, q, "j", WithProfile("a"))
	finishTask(t, q, done.ID)

	mustEnqueue(t, q, "j", WithProfile("b"), WithPriority(7))
	return q
}

func TestListTasks_All(t *testing.T) {
	q := seedListing(t)
	all, err := q.ListTasks(context.Background(), ListQuery{})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ids(all))
}

func TestListTasks_StatusFilter(t *testing.T) {
	q := seedListing(t)
	ctx := context.Background()

	cases := map[Status][]int64{
		StatusWaiting:  {1, 6},
		StatusRunning:  {2},
		StatusFailed:   {3},
		StatusPending:  {4},
		StatusFinished: {5},
		StatusSuccess:  {},
	}
	for st, want := range cases {
		got, err := q.ListTasks(ctx, ListQuery{Status: st})
		require.NoError(t, err, st)
		require.Equal(t, want, ids(got), st)
		for _, tk := range got {
			require.Equal(t, st, tk.Status())
		}
	}
}

func TestListTasks_ProfileAndPriority(t *testing.T) {
	q := seedListing(t)
	ctx := context.Background()

	got, err := q.ListTasks(ctx, ListQuery{Profile: "b"})
	require.NoError(t, err)
	require.Equal(t, []int64{3, 4, 6}, ids(got))

	got, err = q.ListTasks(ctx, ListQuery{Priority: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 4}, ids(got))
}

func TestListTasks_Sorting(t *testing.T) {
	q := seedListing(t)
	ctx := context.Background()

	got, err := q.ListTasks(ctx, ListQuery{SortBy: SortByPriority, Order: Desc, Status: StatusWaiting})
	require.NoError(t, err)
	require.Equal(t, []int64{6, 1}, ids(got))

	got, err = q.ListTasks(ctx, ListQuery{SortBy: SortByStatus})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 1, 6, 2, 3, 5}, ids(got))

	got, err = q.ListTasks(ctx, ListQuery{SortBy: SortByID, Order: Desc})
	require.NoError(t, err)
	require.Equal(t, []int64{6, 5, 4, 3, 2, 1}, ids(got))
}

func TestListTasks_InvalidQuery(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.ListTasks(ctx, ListQuery{SortBy: "colour"})
	require.ErrorIs(t, err, ErrInvalidQuery)
	_, err = q.ListTasks(ctx, ListQuery{Order: "sideways"})
	require.ErrorIs(t, err, ErrInvalidQuery)
	_, err = q.ListTasks(ctx, ListQuery{Status: "lost"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}
