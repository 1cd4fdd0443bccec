package adelauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Refresh is rotation-on-use: the presented token is consumed and a new
// pair is issued in one atomic step, so a replayed refresh token always
// fails. Validation fails closed: if the credential store cannot be
// reached the token is rejected as unavailable rather than trusted on
// signature alone.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, device DeviceInfo) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, errWrap(ErrValidation, errors.New("refresh token is required"))
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.logger.Info("refresh rejected, token verification failed", zap.Error(err))
		return nil, errWrap(ErrAuthentication, err)
	}
	userID := claims.UserID()

	if err := e.checkRateLimit(ctx, "refresh:"+userID, e.config.RateLimit.RefreshLimit, e.config.RateLimit.RefreshWindow); err != nil {
		return nil, err
	}

	if _, err := e.creds.ValidateRefreshToken(ctx, userID, refreshToken); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			e.logger.Warn("refresh rejected, no live record", zap.String("user_id", userID))
			return nil, errWrap(ErrAuthentication, err)
		}
		e.logger.Error("refresh validation unavailable, failing closed", zap.Error(err))
		return nil, errWrap(ErrDependencyUnavailable, err)
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return nil, ErrAuthentication
		}
		return nil, e.storeErr(err)
	}
	now := e.now()
	if user.Locked(now) {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	jti := e.tokens.NewTokenID()
	access, err := e.tokens.IssueAccess(user.ID, jti, user.Role.String(), nil)
	if err != nil {
		return nil, errWrap(ErrDependencyUnavailable, err)
	}
	newRefresh, err := e.tokens.IssueRefresh(user.ID, jti, user.Role.String())
	if err != nil {
		return nil, errWrap(ErrDependencyUnavailable, err)
	}

	rec := &credstore.RefreshRecord{
		UserID:    user.ID,
		TokenID:   jti,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
	}
	if err := e.creds.RotateRefreshToken(ctx, rec, refreshToken, newRefresh, e.config.Token.RefreshTTL); err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			// a concurrent rotation consumed the token first
			e.logger.Warn("refresh lost rotation race", zap.String("user_id", user.ID))
			return nil, errWrap(ErrAuthentication, err)
		}
		return nil, e.cacheErr(err)
	}

	sess := &credstore.Session{
		UserID:      user.ID,
		TokenID:     jti,
		RefreshHash: credstore.HashToken(newRefresh),
		Role:        user.Role.String(),
		IPAddress:   device.IPAddress,
		UserAgent:   device.UserAgent,
	}
	if err := e.creds.SetSession(ctx, sess); err != nil {
		e.logger.Warn("session refresh write failed", zap.Error(err))
	}
	e.creds.TouchActive(ctx, user.ID)

	e.publish(events.TypeTokenRefreshed, user.ID, events.LoginPayload{
		UserID:    user.ID,
		Role:      user.Role.String(),
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		At:        now.UTC(),
	})

	return &AuthResult{
		User: user,
		Tokens: TokenPair{
			AccessToken:      access,
			RefreshToken:     newRefresh,
			AccessExpiresAt:  now.Add(e.config.Token.AccessTTL),
			RefreshExpiresAt: now.Add(e.config.Token.RefreshTTL),
		},
	}, nil
}
