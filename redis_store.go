package taskhive

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// zswapScript re-scores a member in every key if its score in KEYS[1] lies within
// [ARGV[2], ARGV[3]]. An empty bound is open.
var zswapScript = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s then return 0 end
s = tonumber(s)
if ARGV[2] ~= '' and s < tonumber(ARGV[2]) then return 0 end
if ARGV[3] ~= '' and s > tonumber(ARGV[3]) then return 0 end
for i = 1, #KEYS do
  redis.call('ZADD', KEYS[i], ARGV[4], ARGV[1])
end
return 1
`)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps a redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Client exposes the underlying client.
func (s *RedisStore) Client() redis.UniversalClient { return s.rdb }

func (s *RedisStore) IncrBy(ctx context.Context, key string, by int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, by).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.rdb.ZRem(ctx, key, toAny(members)...).Err()
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	sc, err := s.rdb.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return sc, true, nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64, desc bool) ([]ScoredMember, error) {
	by := &redis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}
	var (
		zs  []redis.Z
		err error
	)
	if desc {
		zs, err = s.rdb.ZRevRangeByScoreWithScores(ctx, key, by).Result()
	} else {
		zs, err = s.rdb.ZRangeByScoreWithScores(ctx, key, by).Result()
	}
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, ScoredMember{Member: m, Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) ZUnionStore(ctx context.Context, dst string, keys ...string) error {
	return s.rdb.ZUnionStore(ctx, dst, &redis.ZStore{Keys: keys, Aggregate: "MAX"}).Err()
}

func (s *RedisStore) ZSwapScore(ctx context.Context, keys []string, member string, min, max, score float64) (bool, error) {
	n, err := zswapScript.Run(ctx, s.rdb, keys, member, boundArg(min), boundArg(max), formatScore(score)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	return s.rdb.RPush(ctx, key, toAny(values)...).Err()
}

func (s *RedisStore) LPop(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return v, err
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) Pipeline(ctx context.Context, fn func(Batch) error) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		return fn(&redisBatch{ctx: ctx, p: p})
	})
	return err
}

// redisBatch queues commands on a MULTI/EXEC pipeline.
type redisBatch struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (b *redisBatch) Set(key string, value []byte) { b.p.Set(b.ctx, key, value, 0) }

func (b *redisBatch) Del(keys ...string) {
	if len(keys) > 0 {
		b.p.Del(b.ctx, keys...)
	}
}

func (b *redisBatch) IncrBy(key string, by int64) { b.p.IncrBy(b.ctx, key, by) }

func (b *redisBatch) ZAdd(key, member string, score float64) {
	b.p.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *redisBatch) ZRem(key string, members ...string) {
	if len(members) > 0 {
		b.p.ZRem(b.ctx, key, toAny(members)...)
	}
}

func (b *redisBatch) RPush(key string, values ...string) {
	if len(values) > 0 {
		b.p.RPush(b.ctx, key, toAny(values)...)
	}
}

func (b *redisBatch) LTrim(key string, start, stop int64) { b.p.LTrim(b.ctx, key, start, stop) }

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boundArg(f float64) string {
	if math.IsInf(f, 0) {
		return ""
	}
	return formatScore(f)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
