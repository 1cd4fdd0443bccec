package adelauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/dataaccess"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
	"github.com/kendoaustine/adela-auth/token"
)

const publishTimeout = 5 * time.Second

// Engine defines a public type used by adela-auth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	logger    *zap.Logger
	tokens    *token.Manager
	creds     *credstore.Store
	users     UserDirectory
	data      *dataaccess.Client
	hasher    PasswordHasher
	publisher *events.Publisher
	producer  *events.Producer
	startedAt time.Time
	now       func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() error {
	if e == nil || e.producer == nil {
		return nil
	}
	return e.producer.Close()
}

// publish emits a lifecycle event, fire and forget. A broker outage never
// fails the calling flow: while the broker breaker is open the event is
// dropped and logged, and enqueue errors only feed the breaker.
func (e *Engine) publish(eventType, userID string, payload any) {
	if e.publisher == nil {
		return
	}
	b := e.data.BrokerBreaker()
	if err := b.Allow(); err != nil {
		e.logger.Warn("event dropped, broker circuit open",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := e.publisher.Publish(ctx, eventType, userID, payload)
	b.Record(err)
	if err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// storeErr maps user directory failures onto the public error kinds.
// Missing records keep their sentinel; everything else means the
// relational store or its breaker is refusing calls.
func (e *Engine) storeErr(err error) error {
	if errors.Is(err, userstore.ErrNotFound) {
		return ErrNotFound
	}
	e.logger.Error("user store failure", zap.Error(err))
	return errWrap(ErrDependencyUnavailable, err)
}

// cacheErr maps credential store failures onto the public error kinds.
func (e *Engine) cacheErr(err error) error {
	if errors.Is(err, credstore.ErrNotFound) {
		return ErrNotFound
	}
	e.logger.Error("credential store failure", zap.Error(err))
	return errWrap(ErrDependencyUnavailable, err)
}

func errWrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return wrappedError{kind: kind, cause: cause}
}

// wrappedError pairs a public error kind with its internal cause. Is
// matches the kind; the cause stays available for logging via Unwrap.
type wrappedError struct {
	kind  error
	cause error
}

func (w wrappedError) Error() string { return w.kind.Error() }

func (w wrappedError) Is(target error) bool { return errors.Is(w.kind, target) }

func (w wrappedError) Unwrap() error { return w.cause }

// ready guards the exported operations against a zero or half-built
// Engine; construction goes through [Builder.Build].
func (e *Engine) ready() error {
	if e == nil || e.tokens == nil || e.creds == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return nil
}
