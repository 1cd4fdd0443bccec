package adelauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/events"
)

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Logout revokes the session and its paired refresh token. It is
// idempotent: logging out an already dead session succeeds.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if accessToken == "" {
		return errWrap(ErrValidation, errors.New("access token is required"))
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return errWrap(ErrAuthentication, err)
	}
	userID := claims.UserID()

	sess, err := e.creds.GetSession(ctx, userID)
	switch {
	case err == nil:
		if err := e.creds.RevokeRefreshHash(ctx, userID, sess.RefreshHash); err != nil {
			return e.cacheErr(err)
		}
	case errors.Is(err, credstore.ErrNotFound):
		// already logged out
	default:
		return e.cacheErr(err)
	}

	if err := e.creds.DeleteSession(ctx, userID); err != nil {
		return e.cacheErr(err)
	}

	e.publish(events.TypeLogout, userID, events.RevocationPayload{
		UserID: userID,
		At:     e.now().UTC(),
	})
	return nil
}

// RevokeAll invalidates every credential the user holds: all refresh
// tokens and the session. Idempotent; returns the number of refresh
// records removed.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, errWrap(ErrValidation, errors.New("user id is required"))
	}

	n, err := e.creds.RevokeAllRefreshTokens(ctx, userID)
	if err != nil {
		return n, e.cacheErr(err)
	}
	if err := e.creds.DeleteSession(ctx, userID); err != nil {
		return n, e.cacheErr(err)
	}

	e.logger.Info("all credentials revoked", zap.String("user_id", userID), zap.Int64("refresh_tokens", n))
	e.publish(events.TypeLogout, userID, events.RevocationPayload{
		UserID:        userID,
		TokensRevoked: n,
		Reason:        "revoke_all",
		At:            e.now().UTC(),
	})
	return n, nil
}

// InvalidateUser removes every cached credential family for the user,
// including projections and pending single-use tokens. Meant for account
// deactivation or credential compromise response.
func (e *Engine) InvalidateUser(ctx context.Context, userID string, identifiers ...string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, errWrap(ErrValidation, errors.New("user id is required"))
	}
	n, err := e.creds.InvalidateUser(ctx, userID, identifiers...)
	if err != nil {
		return n, e.cacheErr(err)
	}
	e.logger.Info("user cache invalidated", zap.String("user_id", userID), zap.Int64("keys", n))
	return n, nil
}
