package adelauth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The returned token is delivered out of band by the caller; only its
// hash is stored. Issuing a new token discards any previous one, so at
// most one reset link per account is live. Callers presenting unknown
// identifiers get ErrNotFound; masking that for anti-enumeration is the
// transport layer's call.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if identifier == "" {
		return "", errWrap(ErrValidation, errors.New("identifier is required"))
	}
	if err := e.checkRateLimit(ctx, "reset:"+identifier, e.config.RateLimit.ResetLimit, e.config.RateLimit.ResetWindow); err != nil {
		return "", err
	}

	user, err := e.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return "", e.storeErr(err)
	}

	tokenValue, err := e.creds.StorePasswordResetToken(ctx, user.ID, e.config.PasswordReset.TTL)
	if err != nil {
		return "", e.cacheErr(err)
	}

	e.logger.Info("password reset issued", zap.String("user_id", user.ID))
	return tokenValue, nil
}

// ConfirmPasswordReset consumes a reset token and installs the new
// password. Every outstanding credential is revoked: a reset is assumed
// to mean the old password may be compromised. When revocation cannot be
// completed the call reports ErrDependencyUnavailable even though the new
// password is already in place, so the caller knows old credentials may
// still be live and can retry.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(newPassword) < e.config.Account.MinPasswordLength {
		return errWrap(ErrValidation,
			fmt.Errorf("password must be at least %d characters", e.config.Account.MinPasswordLength))
	}

	userID, err := e.creds.ConsumePasswordResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) || errors.Is(err, credstore.ErrMalformedToken) {
			return errWrap(ErrAuthentication, err)
		}
		return e.cacheErr(err)
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		return errWrap(ErrDependencyUnavailable, err)
	}
	if err := e.users.UpdatePasswordDigest(ctx, userID, digest); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return errWrap(ErrAuthentication, err)
		}
		return e.storeErr(err)
	}
	if err := e.users.ResetFailedLogins(ctx, userID); err != nil {
		e.logger.Warn("failed login counter not cleared after reset", zap.Error(err))
	}

	revoked, err := e.creds.RevokeAllRefreshTokens(ctx, userID)
	if err != nil {
		e.logger.Error("password updated but refresh revocation failed",
			zap.String("user_id", userID), zap.Error(err))
		return errWrap(ErrDependencyUnavailable, err)
	}
	if err := e.creds.DeleteSession(ctx, userID); err != nil {
		e.logger.Error("password updated but session revocation failed",
			zap.String("user_id", userID), zap.Error(err))
		return errWrap(ErrDependencyUnavailable, err)
	}

	e.publish(events.TypePasswordReset, userID, events.RevocationPayload{
		UserID:        userID,
		TokensRevoked: revoked,
		Reason:        "password_reset",
		At:            e.now().UTC(),
	})
	return nil
}
