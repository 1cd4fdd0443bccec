package adelauth

import (
	"context"
	"time"

	"github.com/kendoaustine/adela-auth/identity"
)

// TokenPair carries one access/refresh token pairing. The two tokens are
// issued together and share the session's token id lineage.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// DeviceInfo is optional client metadata recorded on sessions and
// refresh-token records.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
}

// AuthResult is the outcome of a successful login or refresh.
type AuthResult struct {
	User   *identity.User
	Tokens TokenPair
}

// RegisterInput describes a new account request.
type RegisterInput struct {
	Email    string
	Phone    string
	Password string
	Role     identity.Role
}

// PasswordHasher abstracts password digest creation and verification so
// embedders can supply their own KDF.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
}

// UserDirectory is the engine's view of the relational identity store.
// The default implementation is PostgreSQL-backed; embedders with their
// own storage can supply a replacement through the builder.
type UserDirectory interface {
	Create(ctx context.Context, id string, in identity.CreateUserInput) (*identity.User, error)
	GetByID(ctx context.Context, id string) (*identity.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*identity.User, error)
	IncrementFailedLogins(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error)
	ResetFailedLogins(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordDigest(ctx context.Context, id, digest string) error
	MarkEmailVerified(ctx context.Context, id string) error
	MarkPhoneVerified(ctx context.Context, id string) error
}
