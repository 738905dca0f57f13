package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"nfviz.dev/core/status"
)

// Redis keeps the change history in a sorted set scored by sequence
// number, so Since is a range query.
type Redis struct {
	rdb *redis.Client
	key string
}

var _ status.Journal = (*Redis)(nil)

func NewRedis(addr, key string) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{Addr: addr}), key)
}

func NewRedisWithClient(rdb *redis.Client, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Append(ctx context.Context, changes ...status.Change) error {
	members := make([]redis.Z, 0, len(changes))
	for _, c := range changes {
		body, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encoding change %d: %w", c.Seq, err)
		}
		members = append(members, redis.Z{Score: float64(c.Seq), Member: body})
	}
	if len(members) == 0 {
		return nil
	}
	return r.rdb.ZAdd(ctx, r.key, members...).Err()
}

func (r *Redis) Since(ctx context.Context, cursor uint64, limit int) ([]status.Change, error) {
	opt := &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", cursor),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}

	vals, err := r.rdb.ZRangeByScore(ctx, r.key, opt).Result()
	if err != nil {
		return nil, err
	}

	changes := make([]status.Change, 0, len(vals))
	for _, v := range vals {
		var c status.Change
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, fmt.Errorf("decoding change: %w", err)
		}
		changes = append(changes, c)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Seq < changes[j].Seq })

	return changes, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
