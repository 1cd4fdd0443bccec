package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kendoaustine/adela-auth/cache"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(cache.NewRedis(client), cfg, nil), mr
}

func TestSessionLifecycle(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	sess := &Session{UserID: "u1", TokenID: "jti-1", RefreshHash: "h1", Role: "supplier"}
	require.NoError(t, st.SetSession(ctx, sess))

	got, err := st.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "jti-1", got.TokenID)
	require.Equal(t, "h1", got.RefreshHash)
	require.False(t, got.CreatedAt.IsZero())

	require.NoError(t, st.DeleteSession(ctx, "u1"))
	_, err = st.GetSession(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	// deleting again is a no-op
	require.NoError(t, st.DeleteSession(ctx, "u1"))
}

func TestSessionSlidingExpiration(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour, SlidingSessions: true})
	ctx := context.Background()

	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u1", TokenID: "jti-1"}))

	// each read pushes expiry out by the full TTL
	mr.FastForward(45 * time.Minute)
	_, err := st.GetSession(ctx, "u1")
	require.NoError(t, err)

	mr.FastForward(45 * time.Minute)
	_, err = st.GetSession(ctx, "u1")
	require.NoError(t, err)

	// over an hour idle, the session is gone
	mr.FastForward(61 * time.Minute)
	_, err = st.GetSession(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetSessionRefreshesLastSeen(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour, SlidingSessions: true})
	ctx := context.Background()

	issued := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return issued }
	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u1", TokenID: "jti-1"}))

	later := issued.Add(20 * time.Minute)
	st.now = func() time.Time { return later }

	got, err := st.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, later, got.LastSeenAt.UTC())

	// the stamp was written back, not just returned
	stored, err := st.GetSession(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, later, stored.LastSeenAt.UTC())
	require.Equal(t, issued, stored.CreatedAt.UTC())
}

func TestExtendSessionAddsToRemaining(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u1", TokenID: "jti-1"}))
	mr.FastForward(50 * time.Minute)

	// 10m remaining plus a 30m grant is 40m, not a reset to the full TTL
	require.NoError(t, st.ExtendSession(ctx, "u1", 30*time.Minute))
	require.Equal(t, 40*time.Minute, mr.TTL("adela:session:u1"))
}

func TestExtendSessionDoesNotResurrect(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.ErrorIs(t, st.ExtendSession(ctx, "ghost", 10*time.Minute), ErrNotFound)

	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u1", TokenID: "jti-1"}))
	mr.FastForward(61 * time.Minute)
	require.ErrorIs(t, st.ExtendSession(ctx, "u1", 10*time.Minute), ErrNotFound)
}

func TestRefreshTokenRotation(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	rec := &RefreshRecord{UserID: "u1", TokenID: "jti-1"}
	require.NoError(t, st.StoreRefreshToken(ctx, rec, "old-token", time.Hour))

	got, err := st.ValidateRefreshToken(ctx, "u1", "old-token")
	require.NoError(t, err)
	require.Equal(t, "jti-1", got.TokenID)

	next := &RefreshRecord{UserID: "u1", TokenID: "jti-2"}
	require.NoError(t, st.RotateRefreshToken(ctx, next, "old-token", "new-token", time.Hour))

	// old record consumed, new one live
	_, err = st.ValidateRefreshToken(ctx, "u1", "old-token")
	require.ErrorIs(t, err, ErrNotFound)
	got, err = st.ValidateRefreshToken(ctx, "u1", "new-token")
	require.NoError(t, err)
	require.Equal(t, "jti-2", got.TokenID)

	// replaying the old token into another rotation writes nothing
	replay := &RefreshRecord{UserID: "u1", TokenID: "jti-3"}
	require.ErrorIs(t, st.RotateRefreshToken(ctx, replay, "old-token", "stolen-token", time.Hour), ErrNotFound)
	_, err = st.ValidateRefreshToken(ctx, "u1", "stolen-token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeAllRefreshTokensIdempotent(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	for _, raw := range []string{"t1", "t2", "t3"} {
		rec := &RefreshRecord{UserID: "u1", TokenID: "jti-" + raw}
		require.NoError(t, st.StoreRefreshToken(ctx, rec, raw, time.Hour))
	}
	require.NoError(t, st.StoreRefreshToken(ctx, &RefreshRecord{UserID: "u2", TokenID: "jti-x"}, "other", time.Hour))

	n, err := st.RevokeAllRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	n, err = st.RevokeAllRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	// unrelated user untouched
	_, err = st.ValidateRefreshToken(ctx, "u2", "other")
	require.NoError(t, err)
}

func TestValidateRefreshTokenFailsClosed(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.StoreRefreshToken(ctx, &RefreshRecord{UserID: "u1", TokenID: "jti-1"}, "tok", time.Hour))
	mr.Close()

	_, err := st.ValidateRefreshToken(ctx, "u1", "tok")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestVerifyOTPAttemptLimit(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetOTP(ctx, "login", "user@example.com", "483920", 5*time.Minute))

	for i := 0; i < 3; i++ {
		res, err := st.VerifyOTP(ctx, "login", "user@example.com", "000000")
		require.NoError(t, err)
		require.False(t, res.Valid)
		require.Equal(t, "code mismatch", res.Reason)
	}

	// fourth attempt destroys the record even with the right code
	_, err := st.VerifyOTP(ctx, "login", "user@example.com", "483920")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = st.VerifyOTP(ctx, "login", "user@example.com", "483920")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyOTPConsumesOnSuccess(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetOTP(ctx, "phone_verify", "+2348012345678", "112233", 5*time.Minute))

	res, err := st.VerifyOTP(ctx, "phone_verify", "+2348012345678", "112233")
	require.NoError(t, err)
	require.True(t, res.Valid)

	_, err = st.VerifyOTP(ctx, "phone_verify", "+2348012345678", "112233")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetOTPResetsAttempts(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetOTP(ctx, "login", "u@example.com", "111111", 5*time.Minute))
	for i := 0; i < 2; i++ {
		_, err := st.VerifyOTP(ctx, "login", "u@example.com", "wrong")
		require.NoError(t, err)
	}

	// a fresh code starts a fresh attempt budget
	require.NoError(t, st.SetOTP(ctx, "login", "u@example.com", "222222", 5*time.Minute))
	for i := 0; i < 3; i++ {
		res, err := st.VerifyOTP(ctx, "login", "u@example.com", "wrong")
		require.NoError(t, err)
		require.False(t, res.Valid)
	}
	_, err := st.VerifyOTP(ctx, "login", "u@example.com", "222222")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordResetTokenSingleUse(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	token, err := st.StorePasswordResetToken(ctx, "u1", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := st.ConsumePasswordResetToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u1", userID)

	_, err = st.ConsumePasswordResetToken(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordResetTokenSupersedesPrevious(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	first, err := st.StorePasswordResetToken(ctx, "u1", 15*time.Minute)
	require.NoError(t, err)
	second, err := st.StorePasswordResetToken(ctx, "u1", 15*time.Minute)
	require.NoError(t, err)

	_, err = st.ConsumePasswordResetToken(ctx, first)
	require.ErrorIs(t, err, ErrNotFound)

	userID, err := st.ConsumePasswordResetToken(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "u1", userID)
}

func TestConsumeMalformedToken(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	_, err := st.ConsumePasswordResetToken(ctx, "no-separator")
	require.ErrorIs(t, err, ErrMalformedToken)
	_, err = st.ConsumeEmailVerificationToken(ctx, ".missing-user")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestEmailVerificationToken(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	token, err := st.StoreEmailVerificationToken(ctx, "u7", time.Hour)
	require.NoError(t, err)

	userID, err := st.ConsumeEmailVerificationToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "u7", userID)

	_, err = st.ConsumeEmailVerificationToken(ctx, token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckRateLimitFixedWindow(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		res, err := st.CheckRateLimit(ctx, "login:u@example.com", 3, time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, res.Attempts)
		require.Equal(t, 3-i, res.Remaining)
		require.False(t, res.Blocked)
	}

	res, err := st.CheckRateLimit(ctx, "login:u@example.com", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Blocked)
	require.EqualValues(t, 0, res.Remaining)

	// window expiry opens a fresh budget
	mr.FastForward(61 * time.Second)
	res, err = st.CheckRateLimit(ctx, "login:u@example.com", 3, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Attempts)
	require.False(t, res.Blocked)
}

func TestCheckRateLimitDegradesOpen(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	mr.Close()

	res, err := st.CheckRateLimit(context.Background(), "login:u@example.com", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, res.Blocked)
}

func TestResetRateLimit(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CheckRateLimit(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, st.ResetRateLimit(ctx, "k"))

	res, err := st.CheckRateLimit(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Attempts)
}

func TestActiveUserCount(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }
	st.TouchActive(ctx, "u1")
	st.TouchActive(ctx, "u2")

	st.now = func() time.Time { return base.Add(10 * time.Minute) }
	st.TouchActive(ctx, "u3")
	// touching again moves the score, not the cardinality
	st.TouchActive(ctx, "u1")

	n, err := st.ActiveUserCount(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = st.ActiveUserCount(ctx, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestInvalidateUser(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u1", TokenID: "jti-1"}))
	require.NoError(t, st.StoreRefreshToken(ctx, &RefreshRecord{UserID: "u1", TokenID: "jti-1"}, "tok-a", time.Hour))
	require.NoError(t, st.StoreRefreshToken(ctx, &RefreshRecord{UserID: "u1", TokenID: "jti-2"}, "tok-b", time.Hour))
	reset, err := st.StorePasswordResetToken(ctx, "u1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, st.SetUserProjection(ctx, "profile", "u1", []byte(`{"name":"Ada"}`), time.Hour))
	require.NoError(t, st.SetOTP(ctx, "login", "ada@example.com", "123456", time.Hour))

	// unrelated user survives
	require.NoError(t, st.SetSession(ctx, &Session{UserID: "u2", TokenID: "jti-z"}))

	n, err := st.InvalidateUser(ctx, "u1", "ada@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 6, n)

	_, err = st.GetSession(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.ValidateRefreshToken(ctx, "u1", "tok-a")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.ConsumePasswordResetToken(ctx, reset)
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, st.GetUserProjection(ctx, "profile", "u1"))
	_, err = st.VerifyOTP(ctx, "login", "ada@example.com", "123456")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetSession(ctx, "u2")
	require.NoError(t, err)
}

func TestInvalidateUserRespectsKeyBoundaries(t *testing.T) {
	st, _ := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetUserProjection(ctx, "profile", "u1", []byte(`{"name":"Ada"}`), time.Hour))
	require.NoError(t, st.SetUserProjection(ctx, "profile", "u12", []byte(`{"name":"Grace"}`), time.Hour))
	require.NoError(t, st.StoreRefreshToken(ctx, &RefreshRecord{UserID: "u12", TokenID: "jti-12"}, "tok-12", time.Hour))
	require.NoError(t, st.SetOTP(ctx, "login", "ada@example.com", "123456", time.Hour))
	require.NoError(t, st.SetOTP(ctx, "login", "ada@example.composite", "654321", time.Hour))

	n, err := st.InvalidateUser(ctx, "u1", "ada@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.Nil(t, st.GetUserProjection(ctx, "profile", "u1"))

	// "u1" is a prefix of "u12" and one identifier of the other, so
	// nothing belonging to the longer names may be touched
	require.Equal(t, []byte(`{"name":"Grace"}`), st.GetUserProjection(ctx, "profile", "u12"))
	_, err = st.ValidateRefreshToken(ctx, "u12", "tok-12")
	require.NoError(t, err)
	_, err = st.VerifyOTP(ctx, "login", "ada@example.composite", "654321")
	require.NoError(t, err)
}

func TestUserProjectionBestEffort(t *testing.T) {
	st, mr := newTestStore(t, Config{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, st.SetUserProjection(ctx, "permissions", "u1", []byte(`["orders:read"]`), time.Hour))
	require.Equal(t, []byte(`["orders:read"]`), st.GetUserProjection(ctx, "permissions", "u1"))

	// cache loss is silent on the projection path
	mr.Close()
	require.NoError(t, st.SetUserProjection(ctx, "permissions", "u1", []byte(`[]`), time.Hour))
	require.Nil(t, st.GetUserProjection(ctx, "permissions", "u1"))
}

func TestHashTokenStable(t *testing.T) {
	h1 := HashToken("secret-value")
	h2 := HashToken("secret-value")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
	require.NotEqual(t, h1, HashToken("other-value"))
}
