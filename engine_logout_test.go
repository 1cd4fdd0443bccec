package adelauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kendoaustine/adela-auth/credstore"
)

func TestLogout(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	env.seedUser(t, "ada@example.com", "", "correct horse battery")

	res, err := env.eng.Login(ctx, "ada@example.com", "correct horse battery", DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, env.eng.Logout(ctx, res.Tokens.AccessToken))

	_, err = env.eng.creds.GetSession(ctx, res.User.ID)
	require.ErrorIs(t, err, credstore.ErrNotFound)

	// the paired refresh token died with the session
	_, err = env.eng.Refresh(ctx, res.Tokens.RefreshToken, DeviceInfo{})
	require.ErrorIs(t, err, ErrAuthentication)

	// logging out twice is fine
	require.NoError(t, env.eng.Logout(ctx, res.Tokens.AccessToken))
}

func TestLogoutRequiresValidToken(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()

	require.ErrorIs(t, env.eng.Logout(ctx, ""), ErrValidation)
	require.ErrorIs(t, env.eng.Logout(ctx, "not.a.jwt"), ErrAuthentication)
}

func TestRevokeAll(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	env.seedUser(t, "ada@example.com", "", "correct horse battery")

	res, err := env.eng.Login(ctx, "ada@example.com", "correct horse battery", DeviceInfo{})
	require.NoError(t, err)

	n, err := env.eng.RevokeAll(ctx, res.User.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = env.eng.Refresh(ctx, res.Tokens.RefreshToken, DeviceInfo{})
	require.ErrorIs(t, err, ErrAuthentication)
	_, err = env.eng.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrAuthentication)

	// idempotent; nothing left to revoke
	n, err = env.eng.RevokeAll(ctx, res.User.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInvalidateUser(t *testing.T) {
	env := newTestEngine(t)
	ctx := context.Background()
	env.seedUser(t, "ada@example.com", "", "correct horse battery")

	res, err := env.eng.Login(ctx, "ada@example.com", "correct horse battery", DeviceInfo{})
	require.NoError(t, err)

	n, err := env.eng.InvalidateUser(ctx, res.User.ID, "ada@example.com")
	require.NoError(t, err)
	require.Greater(t, n, int64(0))

	_, err = env.eng.creds.GetSession(ctx, res.User.ID)
	require.ErrorIs(t, err, credstore.ErrNotFound)
}
