package credstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RateLimitResult describes the state of a fixed-window rate limit
// counter after one attempt has been charged.
type RateLimitResult struct {
	Attempts  int64
	Remaining int64
	ResetTime time.Time
	Blocked   bool
}

// CheckRateLimit charges one attempt against a fixed-window counter and
// reports whether the caller is over the limit. The window TTL is applied
// only by the increment that creates the key, so the window never slides
// under sustained traffic.
//
// Rate limiting degrades open: when the cache is unreachable the attempt
// is allowed rather than locking every caller out, and the failure is
// left to the caller's circuit breaker to account for.
//
// Performance: 1 Redis command, 2 on window creation.
func (s *Store) CheckRateLimit(ctx context.Context, identifier string, limit int64, window time.Duration) (*RateLimitResult, error) {
	key := s.rateKey(identifier)

	attempts, err := s.cache.Incr(ctx, key, 1)
	if err != nil {
		s.logger.Warn("rate limit counter unavailable", zap.String("identifier", identifier), zap.Error(err))
		return &RateLimitResult{Attempts: 1, Remaining: limit - 1, ResetTime: s.now().Add(window)}, nil
	}

	if attempts == 1 {
		if _, err := s.cache.Expire(ctx, key, window); err != nil {
			s.logger.Warn("rate limit window not set", zap.String("identifier", identifier), zap.Error(err))
		}
	}

	ttl, err := s.cache.TTL(ctx, key)
	if err != nil || ttl < 0 {
		ttl = window
	}

	remaining := limit - attempts
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Attempts:  attempts,
		Remaining: remaining,
		ResetTime: s.now().Add(ttl),
		Blocked:   attempts > limit,
	}, nil
}

// ResetRateLimit clears the counter for an identifier, typically after a
// successful authentication.
func (s *Store) ResetRateLimit(ctx context.Context, identifier string) error {
	if _, err := s.cache.Del(ctx, s.rateKey(identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
