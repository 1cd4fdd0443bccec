package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendoaustine/adela-auth/breaker"
	"github.com/kendoaustine/adela-auth/cache"
)

// guardedCache wraps a cache.Store so every call passes through the
// cache breaker. A short-circuited call reports ErrUnavailable, which the
// credential store already treats the same way as a backend failure:
// best-effort paths degrade, refresh validation fails closed.
//
// A cache miss is a valid answer and is recorded as success.
type guardedCache struct {
	inner cache.Store
	b     *breaker.Breaker
}

func (g *guardedCache) short() error {
	if err := g.b.Allow(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
	}
	return nil
}

func (g *guardedCache) record(err error) {
	if err == nil || errors.Is(err, cache.ErrNotFound) {
		g.b.Record(nil)
		return
	}
	g.b.Record(err)
}

func (g *guardedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := g.short(); err != nil {
		return err
	}
	err := g.inner.Set(ctx, key, value, ttl)
	g.record(err)
	return err
}

func (g *guardedCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := g.short(); err != nil {
		return nil, err
	}
	data, err := g.inner.Get(ctx, key)
	g.record(err)
	return data, err
}

func (g *guardedCache) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	n, err := g.inner.Del(ctx, keys...)
	g.record(err)
	return n, err
}

func (g *guardedCache) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	n, err := g.inner.DelPattern(ctx, pattern)
	g.record(err)
	return n, err
}

func (g *guardedCache) Incr(ctx context.Context, key string, amount int64) (int64, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	n, err := g.inner.Incr(ctx, key, amount)
	g.record(err)
	return n, err
}

func (g *guardedCache) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := g.short(); err != nil {
		return false, err
	}
	ok, err := g.inner.Expire(ctx, key, ttl)
	g.record(err)
	return ok, err
}

func (g *guardedCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	d, err := g.inner.TTL(ctx, key)
	g.record(err)
	return d, err
}

func (g *guardedCache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := g.short(); err != nil {
		return err
	}
	err := g.inner.ZAdd(ctx, key, score, member)
	g.record(err)
	return err
}

func (g *guardedCache) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	n, err := g.inner.ZRemRangeByScore(ctx, key, min, max)
	g.record(err)
	return n, err
}

func (g *guardedCache) ZCard(ctx context.Context, key string) (int64, error) {
	if err := g.short(); err != nil {
		return 0, err
	}
	n, err := g.inner.ZCard(ctx, key)
	g.record(err)
	return n, err
}

func (g *guardedCache) Eval(ctx context.Context, script *cache.Script, keys []string, args ...any) (any, error) {
	if err := g.short(); err != nil {
		return nil, err
	}
	res, err := g.inner.Eval(ctx, script, keys, args...)
	g.record(err)
	return res, err
}

func (g *guardedCache) Ping(ctx context.Context) error {
	if err := g.short(); err != nil {
		return err
	}
	err := g.inner.Ping(ctx)
	g.record(err)
	return err
}

var _ cache.Store = (*guardedCache)(nil)
