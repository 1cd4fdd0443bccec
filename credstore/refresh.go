package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kendoaustine/adela-auth/cache"
)

// RefreshRecord is the server-side record of an issued refresh token.
// The raw token never appears here; the record lives under a key derived
// from the token's SHA-256 hash.
type RefreshRecord struct {
	UserID    string    `json:"user_id"`
	TokenID   string    `json:"token_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// rotateScript atomically consumes the old refresh record and installs the
// new one. Deleting the old key and writing the new one in one script
// closes the race where two concurrent refreshes of the same token both
// succeed: exactly one caller observes the delete, the other gets 0 back.
var rotateScript = &cache.Script{
	Name: "refresh_rotate",
	Src: `if redis.call("DEL", KEYS[1]) == 1 then
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0`,
}

// StoreRefreshToken records a newly issued refresh token for later
// validation. rawToken is hashed before use; ttl should match the token's
// own expiry.
func (s *Store) StoreRefreshToken(ctx context.Context, rec *RefreshRecord, rawToken string, ttl time.Duration) error {
	if rec == nil || rec.UserID == "" || rawToken == "" {
		return fmt.Errorf("%w: refresh record requires a user id and token", ErrNotFound)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.now().Add(ttl)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	if err := s.cache.Set(ctx, s.refreshKey(rec.UserID, HashToken(rawToken)), data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ValidateRefreshToken checks that a presented refresh token has a live
// server-side record. Unlike the best-effort read paths, this one fails
// closed: a cache outage reports ErrUnavailable rather than accepting the
// token, since a revoked token must never validate just because the
// revocation list is unreachable.
//
// Performance: 1 Redis command.
func (s *Store) ValidateRefreshToken(ctx context.Context, userID, rawToken string) (*RefreshRecord, error) {
	data, err := s.cache.Get(ctx, s.refreshKey(userID, HashToken(rawToken)))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec RefreshRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal refresh record: %w", err)
	}
	return &rec, nil
}

// RotateRefreshToken atomically revokes the old refresh token and records
// the new one. If the old token's record is already gone, either expired,
// revoked, or consumed by a concurrent rotation, nothing is written and
// ErrNotFound is returned. Replayed rotations therefore always lose.
//
// Performance: 1 Redis command (scripted).
func (s *Store) RotateRefreshToken(ctx context.Context, rec *RefreshRecord, oldRaw, newRaw string, ttl time.Duration) error {
	if rec == nil || rec.UserID == "" || oldRaw == "" || newRaw == "" {
		return fmt.Errorf("%w: rotation requires a user id and both tokens", ErrNotFound)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.now().Add(ttl)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}

	keys := []string{
		s.refreshKey(rec.UserID, HashToken(oldRaw)),
		s.refreshKey(rec.UserID, HashToken(newRaw)),
	}
	res, err := s.cache.Eval(ctx, rotateScript, keys, string(data), ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, ok := res.(int64); !ok || n != 1 {
		return ErrNotFound
	}
	return nil
}

// RevokeRefreshToken deletes the record for a single refresh token.
// Revoking an unknown token is not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, userID, rawToken string) error {
	if _, err := s.cache.Del(ctx, s.refreshKey(userID, HashToken(rawToken))); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeRefreshHash deletes the record addressed by an already computed
// token hash. Used on logout, where the session carries the hash but the
// raw token is long gone.
func (s *Store) RevokeRefreshHash(ctx context.Context, userID, tokenHash string) error {
	if tokenHash == "" {
		return nil
	}
	if _, err := s.cache.Del(ctx, s.refreshKey(userID, tokenHash)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAllRefreshTokens deletes every refresh record for the user and
// returns the number removed. Idempotent: revoking a user with no live
// tokens returns 0 without error.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) (int64, error) {
	n, err := s.cache.DelPattern(ctx, s.refreshPattern(userID))
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
