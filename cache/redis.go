package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const delPatternBatch = 500

// Redis is the go-redis backed [Store] implementation.
type Redis struct {
	client redis.UniversalClient

	mu      sync.Mutex
	scripts map[string]*redis.Script
}

// NewRedis creates a [Redis] adapter over the given client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		client:  client,
		scripts: make(map[string]*redis.Script),
	}
}

// Set stores value under key with the given TTL.
//
//	Performance: 1 Redis SET.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the value stored under key, or [ErrNotFound] on a miss.
//
//	Performance: 1 Redis GET.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// Del removes the given keys and returns how many existed.
func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// DelPattern removes every key matching the glob pattern and returns the
// count deleted. SCAN-based so it never blocks the server on large
// keyspaces; this is an invalidation path, not a request hot path.
func (r *Redis) DelPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, delPatternBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Incr atomically adds amount to the counter at key and returns the new
// value. Missing keys start at zero.
func (r *Redis) Incr(ctx context.Context, key string, amount int64) (int64, error) {
	n, err := r.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Expire sets the TTL for key. Returns false when the key does not exist.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// TTL returns the remaining lifetime of key. Missing keys report
// [ErrNotFound]; keys without an expiry report -1.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// go-redis passes the protocol sentinels through unscaled: a raw -2
	// means the key does not exist, a raw -1 means no expiry is set.
	switch d {
	case -2:
		return 0, ErrNotFound
	case -1:
		return -1, nil
	}
	return d, nil
}

// ZAdd inserts member with score into the sorted set at key.
func (r *Redis) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ZRemRangeByScore removes members scored within [min, max] and returns
// the count removed.
func (r *Redis) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	n, err := r.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ZCard returns the cardinality of the sorted set at key.
func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Eval runs the script atomically on the server. Scripts are cached by
// name so repeated calls use EVALSHA.
func (r *Redis) Eval(ctx context.Context, script *Script, keys []string, args ...any) (any, error) {
	res, err := r.luaFor(script).Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

// Ping checks backend availability.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) luaFor(script *Script) *redis.Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.scripts[script.Name]; ok {
		return s
	}
	s := redis.NewScript(script.Src)
	r.scripts[script.Name] = s
	return s
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
