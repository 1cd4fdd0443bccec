package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/cache"
)

// Session is the cached login session for a user. One session exists per
// user at a time; a new login overwrites the previous one. TokenID is the
// jti of the currently valid access token, RefreshHash the SHA-256 of the
// paired refresh token.
type Session struct {
	UserID      string    `json:"user_id"`
	TokenID     string    `json:"token_id"`
	RefreshHash string    `json:"refresh_hash"`
	Role        string    `json:"role"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// SetSession writes the session record under the configured session TTL,
// replacing any existing session for the user.
//
// Performance: 1 Redis command.
func (s *Store) SetSession(ctx context.Context, sess *Session) error {
	if sess == nil || sess.UserID == "" {
		return fmt.Errorf("%w: session requires a user id", ErrNotFound)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	sess.LastSeenAt = s.now()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.cache.Set(ctx, s.sessionKey(sess.UserID), data, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetSession returns the user's session. With sliding sessions enabled
// every successful read stamps LastSeenAt and rewrites the record under
// the full session TTL, so active users never see their session expire
// mid-use. The slide is best effort; a failed rewrite leaves the prior
// record intact.
//
// Performance: 1 Redis command, 2 with sliding sessions.
func (s *Store) GetSession(ctx context.Context, userID string) (*Session, error) {
	data, err := s.cache.Get(ctx, s.sessionKey(userID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	if s.sliding {
		sess.LastSeenAt = s.now()
		if slid, err := json.Marshal(&sess); err == nil {
			if err := s.cache.Set(ctx, s.sessionKey(userID), slid, s.ttl); err != nil {
				s.logger.Warn("session slide failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return &sess, nil
}

// DeleteSession removes the user's session. Deleting an absent session is
// not an error.
func (s *Store) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.cache.Del(ctx, s.sessionKey(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// extendSessionScript adds the extension to the key's remaining lifetime
// rather than resetting it, so back-to-back extends accumulate. An
// expired or absent key is left alone.
var extendSessionScript = &cache.Script{
	Name: "session_extend",
	Src: `local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
redis.call("PEXPIRE", KEYS[1], ttl + tonumber(ARGV[1]))
return 1`,
}

// ExtendSession grants the session extra lifetime on top of whatever it
// has left, without reading the record. A session that has already
// expired is not resurrected; the call is a no-op and reports
// ErrNotFound.
//
// Performance: 1 Redis command (scripted).
func (s *Store) ExtendSession(ctx context.Context, userID string, extension time.Duration) error {
	if extension <= 0 {
		return errors.New("credstore: extension must be positive")
	}
	res, err := s.cache.Eval(ctx, extendSessionScript, []string{s.sessionKey(userID)}, extension.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res != int64(1) {
		return ErrNotFound
	}
	return nil
}
