// Package userstore implements the relational identity store on
// PostgreSQL. The users table is the source of truth for accounts and
// lockout state; everything cached elsewhere is a projection of it.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kendoaustine/adela-auth/identity"
)

const usersTable = "auth.users"

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

var (
	// ErrNotFound is an exported constant or variable used by the authentication gateway.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is an exported constant or variable used by the authentication gateway.
	ErrDuplicate = errors.New("user already exists")
)

// Querier is the subset of pgx executor behavior the repository needs.
// Satisfied by *pgxpool.Pool, pgx.Tx, and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL-backed user repository.
type Repository struct {
	db      Querier
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// New constructs a repository over any [Querier].
func New(db Querier) *Repository {
	return &Repository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx, builder: r.builder, now: r.now}
}

var userColumns = []string{
	"id",
	"email",
	"phone",
	"password_digest",
	"role",
	"is_active",
	"is_verified",
	"email_verified_at",
	"phone_verified_at",
	"failed_login_attempts",
	"locked_until",
	"last_login_at",
	"created_at",
	"updated_at",
}

// Create inserts a new user row. A unique violation on email or phone
// reports [ErrDuplicate].
func (r *Repository) Create(ctx context.Context, id string, in identity.CreateUserInput) (*identity.User, error) {
	var phoneValue any
	if in.Phone != "" {
		phoneValue = in.Phone
	}

	now := r.now().UTC()
	stmt, args, err := r.builder.Insert(usersTable).
		Columns("id", "email", "phone", "password_digest", "role", "is_active", "is_verified", "created_at", "updated_at").
		Values(id, in.Email, phoneValue, in.PasswordDigest, in.Role, in.IsActive, in.IsVerified, now, now).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, in.Email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &identity.User{
		ID:             id,
		Email:          in.Email,
		Phone:          in.Phone,
		PasswordDigest: in.PasswordDigest,
		Role:           in.Role,
		IsActive:       in.IsActive,
		IsVerified:     in.IsVerified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetByID retrieves a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}
	return r.scanUser(r.db.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves a user by email or phone.
func (r *Repository) GetByIdentifier(ctx context.Context, identifier string) (*identity.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Or{
			squirrel.Eq{"email": identifier},
			squirrel.Eq{"phone": identifier},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}
	return r.scanUser(r.db.QueryRow(ctx, stmt, args...))
}

func (r *Repository) scanUser(row pgx.Row) (*identity.User, error) {
	var (
		user  identity.User
		phone sql.NullString
		role  string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&phone,
		&user.PasswordDigest,
		&role,
		&user.IsActive,
		&user.IsVerified,
		&user.EmailVerifiedAt,
		&user.PhoneVerifiedAt,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Role = identity.Role(role)
	if phone.Valid {
		user.Phone = phone.String
	}
	return &user, nil
}

// IncrementFailedLogins atomically advances the failure counter and, once
// it reaches threshold, stamps locked_until. A single UPDATE carries both
// so concurrent failed logins can never lose an increment or race past the
// threshold without locking. Returns the post-increment counter and the
// lock expiry, which is nil while the account is still below threshold.
func (r *Repository) IncrementFailedLogins(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	now := r.now().UTC()
	stmt := `
		UPDATE ` + usersTable + `
		   SET failed_login_attempts = failed_login_attempts + 1,
		       locked_until = CASE
		           WHEN failed_login_attempts + 1 >= $2 THEN $3::timestamptz
		           ELSE locked_until
		       END,
		       updated_at = $4
		 WHERE id = $1
		 RETURNING failed_login_attempts, locked_until
	`

	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.db.QueryRow(ctx, stmt, id, threshold, now.Add(lockFor), now).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("increment failed logins: %w", err)
	}
	return attempts, lockedUntil, nil
}

// ResetFailedLogins clears the failure counter and any lock.
func (r *Repository) ResetFailedLogins(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failed logins sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "reset failed logins")
}

// RecordLogin stamps last_login_at after a successful authentication.
func (r *Repository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("last_login_at", at.UTC()).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "record login")
}

// UpdatePasswordDigest replaces the stored password digest.
func (r *Repository) UpdatePasswordDigest(ctx context.Context, id, digest string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_digest", digest).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "update password")
}

// MarkEmailVerified stamps email verification and flips the account to
// verified.
func (r *Repository) MarkEmailVerified(ctx context.Context, id string) error {
	now := r.now().UTC()
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_verified", true).
		Set("email_verified_at", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark email verified sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "mark email verified")
}

// MarkPhoneVerified stamps phone verification and flips the account to
// verified.
func (r *Repository) MarkPhoneVerified(ctx context.Context, id string) error {
	now := r.now().UTC()
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_verified", true).
		Set("phone_verified_at", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark phone verified sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "mark phone verified")
}

// SetActive enables or disables the account.
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_active", active).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set active sql: %w", err)
	}
	return r.exec(ctx, stmt, args, "set active")
}

func (r *Repository) exec(ctx context.Context, stmt string, args []any, op string) error {
	ct, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Querier = (*pgxpool.Pool)(nil)
