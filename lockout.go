package adelauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// recordLoginFailure charges one failed attempt against the account. The
// increment and the threshold check happen in a single atomic UPDATE, so
// concurrent failures cannot race past the threshold. The attempt that
// crosses the threshold still reports ErrAuthentication; only attempts
// arriving while the lock is active see ErrAccountLocked.
func (e *Engine) recordLoginFailure(ctx context.Context, userID string, device DeviceInfo) error {
	attempts, lockedUntil, err := e.users.IncrementFailedLogins(
		ctx, userID, e.config.Account.MaxFailedLogins, e.config.Account.LockDuration,
	)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return ErrAuthentication
		}
		return e.storeErr(err)
	}

	now := e.now().UTC()
	e.logger.Info("login failure recorded",
		zap.String("user_id", userID),
		zap.Int("attempts", attempts),
		zap.Bool("locked", lockedUntil != nil && lockedUntil.After(now)),
	)

	e.publish(events.TypeLoginFailed, userID, events.LoginPayload{
		UserID:    userID,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		Attempts:  attempts,
		At:        now,
	})

	if lockedUntil != nil && lockedUntil.After(now) && attempts == e.config.Account.MaxFailedLogins {
		// lock engaged on this attempt: revoke everything outstanding
		if _, err := e.creds.RevokeAllRefreshTokens(ctx, userID); err != nil {
			e.logger.Warn("lockout revocation incomplete", zap.String("user_id", userID), zap.Error(err))
		}
		if err := e.creds.DeleteSession(ctx, userID); err != nil {
			e.logger.Warn("lockout session delete failed", zap.String("user_id", userID), zap.Error(err))
		}
		e.publish(events.TypeAccountLocked, userID, events.LockPayload{
			UserID:      userID,
			Attempts:    attempts,
			LockedUntil: lockedUntil.UTC(),
			At:          now,
		})
	}

	return ErrAuthentication
}

// UnlockAccount clears the failure counter and any active lock. Intended
// for support tooling; the lock otherwise expires on its own.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.users.ResetFailedLogins(ctx, userID); err != nil {
		return e.storeErr(err)
	}
	e.logger.Info("account unlocked", zap.String("user_id", userID))
	return nil
}

// LockStatus reports the remaining lock duration for an account, zero
// when not locked.
func (e *Engine) LockStatus(ctx context.Context, userID string) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return 0, e.storeErr(err)
	}
	return user.LockRemaining(e.now()), nil
}
