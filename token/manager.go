package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// UseAccess is an exported constant or variable used by the authentication gateway.
	UseAccess = "access"
	// UseRefresh is an exported constant or variable used by the authentication gateway.
	UseRefresh = "refresh"

	minSecretLength = 32
	defaultLeeway   = 30 * time.Second
)

var (
	// ErrTokenExpired is an exported constant or variable used by the authentication gateway.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is an exported constant or variable used by the authentication gateway.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrAlgorithmMismatch is an exported constant or variable used by the authentication gateway.
	ErrAlgorithmMismatch = errors.New("token algorithm mismatch")
)

// Claims is the verified claim set of a gateway token. Required fields
// live as struct members; anything optional rides in the Ext map so that
// verification stays exhaustive over the known fields.
type Claims struct {
	Role string            `json:"role"`
	Use  string            `json:"use"`
	Ext  map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// TokenID returns the jti claim.
func (c *Claims) TokenID() string { return c.ID }

// Config defines a public type used by adela-auth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Manager signs and verifies token pairs. It is stateless and safe for
// concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if c.Issuer == "" || c.Audience == "" {
		return errors.New("issuer and audience are required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("invalid TTL configuration")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Leeway < 0 || c.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	return nil
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = defaultLeeway
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// NewTokenID returns a fresh jti. IDs are never reused across issuance.
func (m *Manager) NewTokenID() string { return uuid.NewString() }

// IssueAccess mints a short-lived access token bound to the given jti.
func (m *Manager) IssueAccess(userID, jti, role string, ext map[string]string) (string, error) {
	return m.sign(userID, jti, role, UseAccess, m.config.AccessTTL, ext)
}

// IssueRefresh mints a long-lived refresh token bound to the given jti.
// Possession alone is not sufficient: redemption also requires the
// server-side revocation record kept by the credential store.
func (m *Manager) IssueRefresh(userID, jti, role string) (string, error) {
	return m.sign(userID, jti, role, UseRefresh, m.config.RefreshTTL, nil)
}

// VerifyAccess checks signature, expiry, issued-at skew, issuer, and
// audience, and confirms the token is an access token. Callers must treat
// every returned error as "unauthenticated"; no claim may be trusted on
// verification failure.
func (m *Manager) VerifyAccess(raw string) (*Claims, error) {
	return m.verify(raw, UseAccess)
}

// VerifyRefresh verifies a refresh token the same way [Manager.VerifyAccess]
// verifies an access token.
func (m *Manager) VerifyRefresh(raw string) (*Claims, error) {
	return m.verify(raw, UseRefresh)
}

func (m *Manager) sign(userID, jti, role, use string, ttl time.Duration, ext map[string]string) (string, error) {
	now := m.now()
	claims := Claims{
		Role: role,
		Use:  use,
		Ext:  ext,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) verify(raw string, wantUse string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, m.keyFunc,
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Use != wantUse {
		return nil, fmt.Errorf("%w: wrong token use", ErrTokenInvalid)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}
	return claims, nil
}

// keyFunc pins the exact signing algorithm. HS384/HS512 are HMAC too and
// must be rejected here, not just non-HMAC methods.
func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrAlgorithmMismatch
	}
	return m.config.Secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmMismatch):
		return ErrAlgorithmMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
