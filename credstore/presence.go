package credstore

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// TouchActive marks the user as recently active in the presence sorted
// set, scored by the current unix timestamp. Presence is best effort: a
// cache failure is logged and swallowed so activity tracking never blocks
// an authenticated request.
func (s *Store) TouchActive(ctx context.Context, userID string) {
	if err := s.cache.ZAdd(ctx, s.presenceKey(), float64(s.now().Unix()), userID); err != nil {
		s.logger.Warn("presence touch failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// ActiveUserCount prunes presence entries older than the window and
// returns how many users were active within it.
//
// Performance: 2 Redis commands.
func (s *Store) ActiveUserCount(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := float64(s.now().Add(-window).Unix())
	if _, err := s.cache.ZRemRangeByScore(ctx, s.presenceKey(), math.Inf(-1), cutoff); err != nil {
		return 0, err
	}
	return s.cache.ZCard(ctx, s.presenceKey())
}
