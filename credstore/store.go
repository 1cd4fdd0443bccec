package credstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/cache"
)

const defaultPrefix = "adela"

var (
	// ErrNotFound is an exported constant or variable used by the authentication gateway.
	ErrNotFound = errors.New("credential record not found")
	// ErrUnavailable is an exported constant or variable used by the authentication gateway.
	ErrUnavailable = errors.New("credential store unavailable")
)

// Config holds credential store tuning parameters.
type Config struct {
	Prefix          string
	SessionTTL      time.Duration
	SlidingSessions bool
}

// Store is the credential store. All state lives in the cache adapter;
// the store itself is stateless and safe for concurrent use.
type Store struct {
	cache   cache.Store
	prefix  string
	logger  *zap.Logger
	ttl     time.Duration
	sliding bool
	now     func() time.Time
}

// New creates a credential [Store] over the given cache adapter.
func New(c cache.Store, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		cache:   c,
		prefix:  prefix,
		logger:  logger,
		ttl:     ttl,
		sliding: cfg.SlidingSessions,
		now:     time.Now,
	}
}

// HashToken returns the hex SHA-256 of a raw token value. Raw refresh
// tokens and reset secrets never land in the cache, only their hashes.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *Store) sessionKey(userID string) string { return s.key("session", userID) }

func (s *Store) refreshKey(userID, tokenHash string) string {
	return s.key("refresh", userID, tokenHash)
}

func (s *Store) refreshPattern(userID string) string { return s.key("refresh", userID, "*") }

func (s *Store) otpKey(otpType, identifier string) string { return s.key("otp", otpType, identifier) }

func (s *Store) otpAttemptsKey(otpType, identifier string) string {
	return s.key("otp", otpType, identifier, "attempts")
}

func (s *Store) resetKey(userID, secretHash string) string { return s.key("reset", userID, secretHash) }

func (s *Store) verifyKey(userID, secretHash string) string {
	return s.key("verify", userID, secretHash)
}

func (s *Store) rateKey(identifier string) string { return s.key("ratelimit", identifier) }

func (s *Store) projectionKey(family, userID string) string { return s.key(family, userID) }

func (s *Store) presenceKey() string { return s.key("presence", "active") }

// SetUserProjection caches an ephemeral projection (profile, permissions)
// for a user. Projections are lossy-acceptable: any miss is re-derived
// from the relational store.
func (s *Store) SetUserProjection(ctx context.Context, family, userID string, data []byte, ttl time.Duration) error {
	if err := s.cache.Set(ctx, s.projectionKey(family, userID), data, ttl); err != nil {
		s.logger.Warn("projection cache write failed", zap.String("family", family), zap.Error(err))
		return nil
	}
	return nil
}

// GetUserProjection returns a cached projection, or nil on miss or cache
// failure.
func (s *Store) GetUserProjection(ctx context.Context, family, userID string) []byte {
	data, err := s.cache.Get(ctx, s.projectionKey(family, userID))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("projection cache read failed", zap.String("family", family), zap.Error(err))
		}
		return nil
	}
	return data
}

// InvalidateUser deletes every cached key family for the user: session,
// projections, refresh tokens, reset and verification tokens, and any OTP
// records for the provided identifiers (email, phone). Returns the number
// of keys deleted. Used after account deactivation or credential
// compromise.
func (s *Store) InvalidateUser(ctx context.Context, userID string, identifiers ...string) (int64, error) {
	var total int64

	n, err := s.cache.Del(ctx,
		s.sessionKey(userID),
		s.projectionKey("profile", userID),
		s.projectionKey("permissions", userID))
	total += n
	if err != nil {
		return total, err
	}

	// Pattern segments end at a ":" boundary so invalidating user "12"
	// never touches user "123".
	patterns := []string{
		s.refreshPattern(userID),
		s.key("reset", userID, "*"),
		s.key("verify", userID, "*"),
	}
	for _, identifier := range identifiers {
		if identifier != "" {
			patterns = append(patterns,
				s.key("otp", "*", identifier),
				s.key("otp", "*", identifier, "*"))
		}
	}

	for _, pattern := range patterns {
		n, err := s.cache.DelPattern(ctx, pattern)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Ping reports cache backend availability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}
