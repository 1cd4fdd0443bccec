package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is an exported constant or variable used by the authentication gateway.
// It reports a cache miss: the key is absent or already expired.
var ErrNotFound = errors.New("cache key not found")

// ErrUnavailable is an exported constant or variable used by the authentication gateway.
// It reports that the cache backend could not be reached.
var ErrUnavailable = errors.New("cache unavailable")

// Script is a server-side script executed atomically by the adapter.
// Scripts carry the atomic read-modify-write operations (refresh-token
// rotation, OTP attempt accounting, token consumption) that cannot be
// expressed as single commands.
type Script struct {
	Name string
	Src  string
}

// Store is the cache adapter contract consumed by the credential store.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	DelPattern(ctx context.Context, pattern string) (int64, error)
	Incr(ctx context.Context, key string, amount int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	Eval(ctx context.Context, script *Script, keys []string, args ...any) (any, error)
	Ping(ctx context.Context) error
}
