package adelauth

import (
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/cache"
	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/dataaccess"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
	"github.com/kendoaustine/adela-auth/token"
)

// Builder defines a public type used by adela-auth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	logger *zap.Logger

	redis redis.UniversalClient
	pool  dataaccess.Pool

	brokers       []string
	topicPrefix   string
	serviceName   string
	environment   string
	asyncProducer sarama.AsyncProducer

	users  UserDirectory
	hasher PasswordHasher

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config:      DefaultConfig(),
		serviceName: "adela-auth",
		environment: "production",
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSecret describes the withsecret operation and its observable behavior.
//
// WithSecret may return an error when input validation, dependency calls, or security checks fail.
// WithSecret does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.config.Token.Secret = secret
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres describes the withpostgres operation and its observable behavior.
//
// WithPostgres may return an error when input validation, dependency calls, or security checks fail.
// WithPostgres does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithPostgres(pool dataaccess.Pool) *Builder {
	b.pool = pool
	return b
}

// WithUserDirectory overrides the default PostgreSQL-backed directory.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithBrokers describes the withbrokers operation and its observable behavior.
//
// WithBrokers may return an error when input validation, dependency calls, or security checks fail.
// WithBrokers does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithBrokers(brokers []string, topicPrefix string) *Builder {
	b.brokers = brokers
	b.topicPrefix = topicPrefix
	return b
}

// WithAsyncProducer supplies an already constructed sarama producer
// instead of dialing brokers during Build.
func (b *Builder) WithAsyncProducer(producer sarama.AsyncProducer, topicPrefix string) *Builder {
	b.asyncProducer = producer
	b.topicPrefix = topicPrefix
	return b
}

// WithService records the service name and environment stamped into
// event envelopes.
func (b *Builder) WithService(name, environment string) *Builder {
	b.serviceName = name
	b.environment = environment
	return b
}

// WithHasher describes the withhasher operation and its observable behavior.
//
// WithHasher may return an error when input validation, dependency calls, or security checks fail.
// WithHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil && b.pool == nil {
		return nil, errors.New("postgres pool or user directory required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := token.NewManager(b.config.Token)
	if err != nil {
		return nil, err
	}

	data := dataaccess.New(b.pool, cache.NewRedis(b.redis), dataaccess.Config{
		QueryTimeout: b.config.QueryTimeout,
		DB:           b.config.Breakers.DB,
		Cache:        b.config.Breakers.Cache,
		Broker:       b.config.Breakers.Broker,
	}, logger)

	creds := credstore.New(data.Cache(), credstore.Config{
		Prefix:          b.config.Session.Prefix,
		SessionTTL:      b.config.Session.TTL,
		SlidingSessions: b.config.Session.SlidingExpiration,
	}, logger)

	users := b.users
	if users == nil {
		users = userstore.New(data)
	}

	hasher := b.hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	engine := &Engine{
		config:    b.config,
		logger:    logger,
		tokens:    tokens,
		creds:     creds,
		users:     users,
		data:      data,
		hasher:    hasher,
		startedAt: time.Now(),
		now:       time.Now,
	}

	settings := events.Settings{
		Brokers:     b.brokers,
		TopicPrefix: b.topicPrefix,
		ServiceName: b.serviceName,
		Environment: b.environment,
	}
	switch {
	case b.asyncProducer != nil:
		engine.producer = events.NewProducerFrom(b.asyncProducer, settings, logger, data.BrokerBreaker().Record)
		engine.publisher = events.NewPublisher(engine.producer)
	case len(b.brokers) > 0:
		producer, err := events.NewProducer(settings, logger, data.BrokerBreaker().Record)
		if err != nil {
			return nil, err
		}
		engine.producer = producer
		engine.publisher = events.NewPublisher(producer)
	}

	b.built = true
	return engine, nil
}
