package adelauth

import (
	"fmt"
	"time"

	"github.com/kendoaustine/adela-auth/breaker"
	"github.com/kendoaustine/adela-auth/token"
)

// Config defines a public type used by adela-auth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token             token.Config
	Session           SessionConfig
	Account           AccountConfig
	RateLimit         RateLimitConfig
	OTP               OTPConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Breakers          BreakerConfig
	QueryTimeout      time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by adela-auth APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	Prefix            string
	TTL               time.Duration
	SlidingExpiration bool
	PresenceWindow    time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig defines a public type used by adela-auth APIs.
//
// AccountConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountConfig struct {
	MaxFailedLogins      int
	LockDuration         time.Duration
	AllowUnverifiedLogin bool
	MinPasswordLength    int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by adela-auth APIs.
//
// RateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RateLimitConfig struct {
	Enabled       bool
	LoginLimit    int64
	LoginWindow   time.Duration
	RefreshLimit  int64
	RefreshWindow time.Duration
	ResetLimit    int64
	ResetWindow   time.Duration
}

/*
====================================
OTP / SINGLE-USE TOKEN CONFIG
====================================
*/

// OTPConfig defines a public type used by adela-auth APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	TTL    time.Duration
	Digits int
}

// PasswordResetConfig defines a public type used by adela-auth APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	TTL time.Duration
}

// EmailVerificationConfig defines a public type used by adela-auth APIs.
//
// EmailVerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailVerificationConfig struct {
	TTL time.Duration
}

/*
====================================
BREAKER CONFIG
====================================
*/

// BreakerConfig holds per-dependency circuit breaker tuning.
type BreakerConfig struct {
	DB     breaker.Config
	Cache  breaker.Config
	Broker breaker.Config
}

// transientNetworkErrors are error substrings that indicate connection
// churn rather than dependency death; they propagate to callers but do
// not count toward breaker thresholds.
var transientNetworkErrors = []string{
	"connection reset",
	"broken pipe",
	"i/o timeout",
}

// DefaultConfig returns the production baseline. The token secret is
// intentionally empty and must be supplied by the embedder.
func DefaultConfig() Config {
	breakerDefaults := breaker.Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: time.Minute,
		ExpectedErrors:   transientNetworkErrors,
	}
	return Config{
		Token: token.Config{
			Issuer:     "adela-auth",
			Audience:   "adela-platform",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			Prefix:            "adela",
			TTL:               24 * time.Hour,
			SlidingExpiration: true,
			PresenceWindow:    15 * time.Minute,
		},
		Account: AccountConfig{
			MaxFailedLogins:   5,
			LockDuration:      15 * time.Minute,
			MinPasswordLength: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			LoginLimit:    10,
			LoginWindow:   time.Minute,
			RefreshLimit:  30,
			RefreshWindow: time.Minute,
			ResetLimit:    3,
			ResetWindow:   time.Hour,
		},
		OTP: OTPConfig{
			TTL:    5 * time.Minute,
			Digits: 6,
		},
		PasswordReset:     PasswordResetConfig{TTL: 30 * time.Minute},
		EmailVerification: EmailVerificationConfig{TTL: 24 * time.Hour},
		Breakers: BreakerConfig{
			DB:     breakerDefaults,
			Cache:  breakerDefaults,
			Broker: breakerDefaults,
		},
		QueryTimeout: 30 * time.Second,
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token config: %w", err)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Account.MaxFailedLogins <= 0 {
		return fmt.Errorf("max failed logins must be positive")
	}
	if c.Account.LockDuration <= 0 {
		return fmt.Errorf("lock duration must be positive")
	}
	if c.Account.MinPasswordLength < 8 {
		return fmt.Errorf("minimum password length must be at least 8")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return fmt.Errorf("otp digits must be between 4 and 10")
	}
	if c.PasswordReset.TTL <= 0 || c.EmailVerification.TTL <= 0 {
		return fmt.Errorf("single-use token ttls must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.LoginLimit <= 0 || c.RateLimit.RefreshLimit <= 0 || c.RateLimit.ResetLimit <= 0 {
			return fmt.Errorf("rate limits must be positive when enabled")
		}
		if c.RateLimit.LoginWindow <= 0 || c.RateLimit.RefreshWindow <= 0 || c.RateLimit.ResetWindow <= 0 {
			return fmt.Errorf("rate limit windows must be positive when enabled")
		}
	}
	return nil
}
