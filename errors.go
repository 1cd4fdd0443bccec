package adelauth

import "errors"

var (
	// ErrValidation is an exported constant or variable used by the authentication gateway.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication is an exported constant or variable used by the authentication gateway.
	// It is deliberately generic: the internal reason (unknown account, bad
	// password, revoked token) is logged, never returned.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAccountLocked is an exported constant or variable used by the authentication gateway.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is an exported constant or variable used by the authentication gateway.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountUnverified is an exported constant or variable used by the authentication gateway.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountExists is an exported constant or variable used by the authentication gateway.
	ErrAccountExists = errors.New("account already exists")
	// ErrAuthorization is an exported constant or variable used by the authentication gateway.
	ErrAuthorization = errors.New("insufficient role")
	// ErrRateLimited is an exported constant or variable used by the authentication gateway.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is an exported constant or variable used by the authentication gateway.
	ErrNotFound = errors.New("record not found")
	// ErrDependencyUnavailable is an exported constant or variable used by the authentication gateway.
	// It reports that a backing dependency failed or its circuit breaker is
	// open; the request may be retried after the dependency recovers.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the authentication gateway.
	ErrEngineNotReady = errors.New("engine not ready")
)
