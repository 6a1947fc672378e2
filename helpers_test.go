package taskhive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cleanup := func() {
		_ = rdb.Close()
		s.Close()
	}
	return rdb, cleanup
}

// testClock is a manually advanced due-time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, opts ...QueueOption) (*Queue, *redis.Client, *testClock) {
	t.Helper()
	rdb, done := newMiniClient(t)
	t.Cleanup(done)
	clk := newTestClock()
	all := append([]QueueOption{WithClock(clk.Now)}, opts...)
	return NewQueue(NewRedisStore(rdb), all...), rdb, clk
}

func noopJob(name string) Job {
	return JobFunc{Name: name, Fn: func(context.Context, *Task) error { return nil }}
}

func mustTask(t *testing.T, job string, opts ...TaskOption) *Task {
	t.Helper()
	tk, err := NewTask(noopJob(job), opts...)
	require.NoError(t, err)
	return tk
}

func mustEnqueue(t *testing.T, q *Queue, job string, opts ...TaskOption) *Task {
	t.Helper()
	tk := mustTask(t, job, opts...)
	require.NoError(t, q.Enqueue(context.Background(), tk))
	return tk
}

// finishTask drives a stored task to finished the way an operator would.
func finishTask(t *testing.T, q *Queue, id int64) {
	t.Helper()
	ctx := context.Background()
	tk, err := q.GetTask(ctx, id)
	require.NoError(t, err)
	require.NoError(t, tk.SetStatus(StatusFinished))
	require.NoError(t, q.Update(ctx, tk))
}

var errStoreDown = errors.New("store down")

// failingStore discards every batch that writes one of the armed keys.
type failingStore struct {
	Store
	mu   sync.Mutex
	fail map[string]bool
}

func (s *failingStore) failOn(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]bool{}
	}
	for _, k := range keys {
		s.fail[k] = true
	}
}

func (s *failingStore) heal() {
	s.mu.Lock()
	s.fail = nil
	s.mu.Unlock()
}

func (s *failingStore) Pipeline(ctx context.Context, fn func(Batch) error) error {
	return s.Store.Pipeline(ctx, func(b Batch) error {
		kb := &keyBatch{Batch: b}
		if err := fn(kb); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, k := range kb.written {
			if s.fail[k] {
				return errStoreDown
			}
		}
		return nil
	})
}

// keyBatch records the keys a batch sets.
type keyBatch struct {
	Batch
	written []string
}

func (b *keyBatch) Set(key string, value []byte) {
	b.written = append(b.written, key)
	b.Batch.Set(key, value)
}

func newFailingQueue(t *testing.T) (*Queue, *failingStore, *redis.Client, *testClock) {
	t.Helper()
	rdb, done := newMiniClient(t)
	t.Cleanup(done)
	clk := newTestClock()
	fs := &failingStore{Store: NewRedisStore(rdb)}
	return NewQueue(fs, WithClock(clk.Now)), fs, rdb, clk
}
