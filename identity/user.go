package identity

import (
	"strings"
	"time"
)

// Role defines a public type used by adela-auth APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role string

const (
	// RoleHospital is an exported constant or variable used by the authentication gateway.
	RoleHospital Role = "hospital"
	// RoleArtisan is an exported constant or variable used by the authentication gateway.
	RoleArtisan Role = "artisan"
	// RoleHousehold is an exported constant or variable used by the authentication gateway.
	RoleHousehold Role = "household"
	// RoleSupplier is an exported constant or variable used by the authentication gateway.
	RoleSupplier Role = "supplier"
	// RoleDeliveryDriver is an exported constant or variable used by the authentication gateway.
	RoleDeliveryDriver Role = "delivery_driver"
	// RolePlatformAdmin is an exported constant or variable used by the authentication gateway.
	RolePlatformAdmin Role = "platform_admin"
)

// Valid reports whether the role is one of the platform's known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHospital, RoleArtisan, RoleHousehold, RoleSupplier, RoleDeliveryDriver, RolePlatformAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// User is the identity record persisted in the relational store. The
// relational store is the source of truth; the cache holds only ephemeral
// projections of it.
type User struct {
	ID                  string
	Email               string
	Phone               string
	PasswordDigest      string
	Role                Role
	IsActive            bool
	IsVerified          bool
	EmailVerifiedAt     *time.Time
	PhoneVerifiedAt     *time.Time
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Locked reports whether the account lockout is active at the given
// instant. A lock auto-expires the moment now passes LockedUntil; expired
// locks are not proactively swept, they are simply ignored here and the
// counter is cleared on the next successful login.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LockRemaining returns how long the active lock has left, or zero when
// the account is not locked.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if !u.Locked(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// CreateUserInput is the input for creating a new identity record.
type CreateUserInput struct {
	Email          string
	Phone          string
	PasswordDigest string
	Role           Role
	IsActive       bool
	IsVerified     bool
}
