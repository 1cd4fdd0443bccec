package adelauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/identity"
	"github.com/kendoaustine/adela-auth/token"
)

// VerifyAccess describes the verifyaccess operation and its observable behavior.
//
// VerifyAccess may return an error when input validation, dependency calls, or security checks fail.
// VerifyAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Beyond signature and claim checks, the token's jti is compared against
// the live session: a token minted before the most recent login or
// refresh carries a stale jti and is rejected even though its signature
// is still valid. The session read is best effort; when the cache is
// unreachable the signature verdict stands so reads keep working through
// a Redis outage.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, errWrap(ErrValidation, errors.New("access token is required"))
	}

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, errWrap(ErrAuthentication, err)
	}

	sess, err := e.creds.GetSession(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			e.logger.Info("access rejected, no live session", zap.String("user_id", claims.UserID()))
			return nil, errWrap(ErrAuthentication, err)
		}
		e.logger.Warn("session check unavailable, accepting on signature", zap.Error(err))
		return claims, nil
	}

	if sess.TokenID != claims.TokenID() {
		e.logger.Info("access rejected, stale token",
			zap.String("user_id", claims.UserID()),
			zap.String("token_jti", claims.TokenID()),
			zap.String("session_jti", sess.TokenID),
		)
		return nil, errWrap(ErrAuthentication, errors.New("token superseded by newer login"))
	}

	return claims, nil
}

// RequireRole verifies the token and additionally demands one of the
// given roles. Role mismatch is an authorization failure, distinct from
// authentication failure.
func (e *Engine) RequireRole(ctx context.Context, accessToken string, roles ...identity.Role) (*token.Claims, error) {
	claims, err := e.VerifyAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if claims.Role == role.String() {
			return claims, nil
		}
	}
	return nil, ErrAuthorization
}
