package adelauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/kendoaustine/adela-auth/identity"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// testClock is a mutable clock wired into the engine and the fake
// directory so lock expiry can be driven without sleeping.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Now()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeDirectory is an in-memory UserDirectory. It mirrors the relational
// repository's observable behavior, including the atomic lockout
// threshold on IncrementFailedLogins.
type fakeDirectory struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[string]*identity.User
}

func newFakeDirectory(clock *testClock) *fakeDirectory {
	return &fakeDirectory{
		now:   clock.Now,
		users: make(map[string]*identity.User),
	}
}

func cloneUser(u *identity.User) *identity.User {
	cp := *u
	return &cp
}

func (d *fakeDirectory) Create(_ context.Context, id string, in identity.CreateUserInput) (*identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if (in.Email != "" && u.Email == in.Email) || (in.Phone != "" && u.Phone == in.Phone) {
			return nil, userstore.ErrDuplicate
		}
	}
	now := d.now()
	u := &identity.User{
		ID:             id,
		Email:          in.Email,
		Phone:          in.Phone,
		PasswordDigest: in.PasswordDigest,
		Role:           in.Role,
		IsActive:       in.IsActive,
		IsVerified:     in.IsVerified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	d.users[id] = u
	return cloneUser(u), nil
}

func (d *fakeDirectory) GetByID(_ context.Context, id string) (*identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return cloneUser(u), nil
}

func (d *fakeDirectory) GetByIdentifier(_ context.Context, identifier string) (*identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == identifier || (u.Phone != "" && u.Phone == identifier) {
			return cloneUser(u), nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (d *fakeDirectory) IncrementFailedLogins(_ context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return 0, nil, userstore.ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := d.now().Add(lockFor)
		u.LockedUntil = &until
	}
	var lockedUntil *time.Time
	if u.LockedUntil != nil {
		cp := *u.LockedUntil
		lockedUntil = &cp
	}
	return u.FailedLoginAttempts, lockedUntil, nil
}

func (d *fakeDirectory) ResetFailedLogins(_ context.Context, id string) error {
	return d.update(id, func(u *identity.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (d *fakeDirectory) RecordLogin(_ context.Context, id string, at time.Time) error {
	return d.update(id, func(u *identity.User) {
		u.LastLoginAt = &at
	})
}

func (d *fakeDirectory) UpdatePasswordDigest(_ context.Context, id, digest string) error {
	return d.update(id, func(u *identity.User) {
		u.PasswordDigest = digest
	})
}

func (d *fakeDirectory) MarkEmailVerified(_ context.Context, id string) error {
	return d.update(id, func(u *identity.User) {
		now := d.now()
		u.EmailVerifiedAt = &now
		u.IsVerified = true
	})
}

func (d *fakeDirectory) MarkPhoneVerified(_ context.Context, id string) error {
	return d.update(id, func(u *identity.User) {
		now := d.now()
		u.PhoneVerifiedAt = &now
		u.IsVerified = true
	})
}

func (d *fakeDirectory) update(id string, fn func(*identity.User)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return userstore.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = d.now()
	return nil
}

var _ UserDirectory = (*fakeDirectory)(nil)

type testEnv struct {
	eng   *Engine
	dir   *fakeDirectory
	redis *miniredis.Miniredis
	clock *testClock
}

type testOption func(*Config, *Builder)

func withConfig(mutate func(*Config)) testOption {
	return func(cfg *Config, _ *Builder) { mutate(cfg) }
}

func withEvents(async *fakeAsyncProducer) testOption {
	return func(_ *Config, b *Builder) { b.WithAsyncProducer(async, "adela") }
}

func newTestEngine(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newTestClock()
	dir := newFakeDirectory(clock)

	cfg := DefaultConfig()
	cfg.Token.Secret = []byte(strings.Repeat("s", 32))
	cfg.Account.MaxFailedLogins = 3
	cfg.RateLimit.Enabled = false

	builder := New().
		WithRedis(client).
		WithUserDirectory(dir).
		WithHasher(BcryptHasher{Cost: bcrypt.MinCost}).
		WithLogger(zaptest.NewLogger(t))

	env := &testEnv{dir: dir, redis: mr, clock: clock}
	for _, opt := range opts {
		opt(&cfg, builder)
	}

	eng, err := builder.WithConfig(cfg).Build()
	require.NoError(t, err)
	eng.now = clock.Now
	t.Cleanup(func() { _ = eng.Close() })

	env.eng = eng
	return env
}

// seedUser installs an account directly, bypassing Register, so tests
// can start from a verified active user.
func (env *testEnv) seedUser(t *testing.T, email, phone, password string) *identity.User {
	t.Helper()
	digest, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash(password)
	require.NoError(t, err)
	u, err := env.dir.Create(context.Background(), "user-"+email, identity.CreateUserInput{
		Email:          email,
		Phone:          phone,
		PasswordDigest: digest,
		Role:           identity.RoleHousehold,
		IsActive:       true,
		IsVerified:     true,
	})
	require.NoError(t, err)
	return u
}

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 16),
		errors: make(chan *sarama.ProducerError, 16),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(map[string][]*sarama.PartitionOffsetMetadata, string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(*sarama.ConsumerMessage, string, *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}
