package taskhive

import "context"

// ScoredMember is a sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// Batch queues write commands that a Store executes atomically.
type Batch interface {
	Set(key string, value []byte)
	Del(keys ...string)
	IncrBy(key string, by int64)
	ZAdd(key, member string, score float64)
	ZRem(key string, members ...string)
	RPush(key string, values ...string)
	LTrim(key string, start, stop int64)
}

// Store is the backing key/sorted-set service the queue engine is written against.
// Implementations must execute Pipeline batches atomically.
type Store interface {
	// IncrBy atomically adds by to an integer key and returns the new value.
	IncrBy(ctx context.Context, key string, by int64) (int64, error)
	// Get returns the blob at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a blob.
	Set(ctx context.Context, key string, value []byte) error
	// Del removes keys.
	Del(ctx context.Context, keys ...string) error

	// ZAdd adds or re-scores a member.
	ZAdd(ctx context.Context, key, member string, score float64) error
	// ZRem removes members.
	ZRem(ctx context.Context, key string, members ...string) error
	// ZScore returns the member's score; ok is false if absent.
	ZScore(ctx context.Context, key, member string) (score float64, ok bool, err error)
	// ZRangeByScore returns members with min <= score <= max, ascending or descending.
	ZRangeByScore(ctx context.Context, key string, min, max float64, desc bool) ([]ScoredMember, error)
	// ZUnionStore writes the union of keys into dst, keeping the maximum score per member.
	ZUnionStore(ctx context.Context, dst string, keys ...string) error
	// ZSwapScore atomically sets member's score to score in every key, provided its
	// current score in keys[0] lies within [min, max]. Infinite bounds are open.
	// It reports whether the swap happened.
	ZSwapScore(ctx context.Context, keys []string, member string, min, max, score float64) (bool, error)

	// RPush appends values to a list.
	RPush(ctx context.Context, key string, values ...string) error
	// LPop removes and returns the head of a list, or ErrKeyNotFound when empty.
	LPop(ctx context.Context, key string) (string, error)
	// LRange returns list elements between start and stop inclusive.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Pipeline runs fn and executes the queued commands as one atomic unit.
	Pipeline(ctx context.Context, fn func(Batch) error) error
}
