package credstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendoaustine/adela-auth/cache"
)

// ErrMalformedToken is an exported constant or variable used by the
// authentication gateway. It reports a single-use token that does not
// carry the expected "userID.secret" shape.
var ErrMalformedToken = errors.New("malformed single-use token")

// NewSingleUseToken mints an opaque single-use token for the user. The
// public form is "userID.secret"; only the SHA-256 of the secret is ever
// stored, so a cache dump cannot be replayed as live tokens.
func NewSingleUseToken(userID string) (token, secretHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	return userID + "." + secret, HashToken(secret), nil
}

// SplitSingleUseToken recovers the user id and secret hash from a public
// single-use token.
func SplitSingleUseToken(token string) (userID, secretHash string, err error) {
	userID, secret, ok := strings.Cut(token, ".")
	if !ok || userID == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	return userID, HashToken(secret), nil
}

// StorePasswordResetToken records a pending password reset for the user
// and returns the public token to deliver out of band. Any previous reset
// tokens for the user are discarded first, so only the latest reset link
// works.
func (s *Store) StorePasswordResetToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return s.storeSingleUse(ctx, userID, ttl, s.resetKey, s.key("reset", userID, "*"))
}

// ConsumePasswordResetToken validates and atomically consumes a password
// reset token. A token can be consumed exactly once; concurrent consumers
// race on the delete and exactly one wins.
func (s *Store) ConsumePasswordResetToken(ctx context.Context, token string) (string, error) {
	return s.consumeSingleUse(ctx, token, s.resetKey)
}

// StoreEmailVerificationToken records a pending email verification for
// the user and returns the public token to deliver out of band.
func (s *Store) StoreEmailVerificationToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return s.storeSingleUse(ctx, userID, ttl, s.verifyKey, s.key("verify", userID, "*"))
}

// ConsumeEmailVerificationToken validates and atomically consumes an email
// verification token, returning the verified user's id.
func (s *Store) ConsumeEmailVerificationToken(ctx context.Context, token string) (string, error) {
	return s.consumeSingleUse(ctx, token, s.verifyKey)
}

func (s *Store) storeSingleUse(ctx context.Context, userID string, ttl time.Duration, keyFn func(string, string) string, pattern string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: token requires a user id", ErrNotFound)
	}
	token, secretHash, err := NewSingleUseToken(userID)
	if err != nil {
		return "", err
	}
	if _, err := s.cache.DelPattern(ctx, pattern); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	issued := s.now().UTC().Format(time.RFC3339)
	if err := s.cache.Set(ctx, keyFn(userID, secretHash), []byte(issued), ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

func (s *Store) consumeSingleUse(ctx context.Context, token string, keyFn func(string, string) string) (string, error) {
	userID, secretHash, err := SplitSingleUseToken(token)
	if err != nil {
		return "", err
	}
	n, err := s.cache.Del(ctx, keyFn(userID, secretHash))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n != 1 {
		return "", ErrNotFound
	}
	return userID, nil
}
