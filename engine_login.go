package adelauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/identity"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The checks are ordered deliberately: rate limit, account lookup, lock
// gate, account status, then password verification. The lock gate sits
// before password verification so a locked account rejects even the
// correct password, and the password is never checked for locked accounts.
func (e *Engine) Login(ctx context.Context, identifier, password string, device DeviceInfo) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, errWrap(ErrValidation, errors.New("identifier and password are required"))
	}

	if err := e.checkRateLimit(ctx, "login:"+identifier, e.config.RateLimit.LoginLimit, e.config.RateLimit.LoginWindow); err != nil {
		return nil, err
	}

	user, err := e.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			e.logger.Info("login rejected, unknown identifier", zap.String("identifier", identifier))
			return nil, ErrAuthentication
		}
		return nil, e.storeErr(err)
	}

	now := e.now()
	if user.Locked(now) {
		e.logger.Info("login rejected, account locked",
			zap.String("user_id", user.ID),
			zap.Duration("remaining", user.LockRemaining(now)),
		)
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if !user.IsVerified && !e.config.Account.AllowUnverifiedLogin {
		return nil, ErrAccountUnverified
	}

	ok, err := e.hasher.Verify(password, user.PasswordDigest)
	if err != nil {
		e.logger.Error("password verification failure", zap.Error(err))
		return nil, errWrap(ErrDependencyUnavailable, err)
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, user.ID, device)
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := e.users.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, e.storeErr(err)
		}
	}
	if err := e.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, e.storeErr(err)
	}

	pair, err := e.issueTokens(ctx, user, device)
	if err != nil {
		return nil, err
	}

	if e.config.RateLimit.Enabled {
		if err := e.creds.ResetRateLimit(ctx, "login:"+identifier); err != nil {
			e.logger.Warn("rate limit reset failed", zap.Error(err))
		}
	}
	e.creds.TouchActive(ctx, user.ID)

	e.publish(events.TypeLoginSucceeded, user.ID, events.LoginPayload{
		UserID:    user.ID,
		Role:      user.Role.String(),
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		At:        now.UTC(),
	})

	return &AuthResult{User: user, Tokens: pair}, nil
}

// issueTokens mints a fresh access/refresh pair, records the refresh
// token server-side, and installs the session keyed by the new access
// token's jti.
func (e *Engine) issueTokens(ctx context.Context, user *identity.User, device DeviceInfo) (TokenPair, error) {
	jti := e.tokens.NewTokenID()
	now := e.now()
	accessExp := now.Add(e.config.Token.AccessTTL)
	refreshExp := now.Add(e.config.Token.RefreshTTL)

	access, err := e.tokens.IssueAccess(user.ID, jti, user.Role.String(), nil)
	if err != nil {
		return TokenPair{}, errWrap(ErrDependencyUnavailable, err)
	}
	refresh, err := e.tokens.IssueRefresh(user.ID, jti, user.Role.String())
	if err != nil {
		return TokenPair{}, errWrap(ErrDependencyUnavailable, err)
	}

	rec := &credstore.RefreshRecord{
		UserID:    user.ID,
		TokenID:   jti,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		ExpiresAt: refreshExp,
	}
	if err := e.creds.StoreRefreshToken(ctx, rec, refresh, e.config.Token.RefreshTTL); err != nil {
		return TokenPair{}, e.cacheErr(err)
	}

	sess := &credstore.Session{
		UserID:      user.ID,
		TokenID:     jti,
		RefreshHash: credstore.HashToken(refresh),
		Role:        user.Role.String(),
		IPAddress:   device.IPAddress,
		UserAgent:   device.UserAgent,
	}
	if err := e.creds.SetSession(ctx, sess); err != nil {
		return TokenPair{}, e.cacheErr(err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// checkRateLimit charges one attempt against a fixed-window counter.
func (e *Engine) checkRateLimit(ctx context.Context, key string, limit int64, window time.Duration) error {
	if !e.config.RateLimit.Enabled {
		return nil
	}
	res, err := e.creds.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		e.logger.Warn("rate limit check failed", zap.Error(err))
		return nil
	}
	if res.Blocked {
		return ErrRateLimited
	}
	return nil
}
