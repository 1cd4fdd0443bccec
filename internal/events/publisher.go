package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

const schemaVersion = "1.0"

// Event types emitted by the authentication engine.
const (
	TypeUserRegistered  = "auth.user.registered"
	TypeLoginSucceeded  = "auth.login.succeeded"
	TypeLoginFailed     = "auth.login.failed"
	TypeAccountLocked   = "auth.account.locked"
	TypeAccountVerified = "auth.account.verified"
	TypeTokenRefreshed  = "auth.token.refreshed"
	TypeLogout          = "auth.logout"
	TypePasswordReset   = "auth.password.reset"
)

type envelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Publisher emits lifecycle events through a [Producer].
type Publisher struct {
	producer *Producer
	now      func() time.Time
}

// NewPublisher constructs a publisher over the producer.
func NewPublisher(producer *Producer) *Publisher {
	return &Publisher{producer: producer, now: time.Now}
}

// Publish wraps the payload in the standard envelope and enqueues it.
// Blocks only until the producer accepts the message or ctx expires.
func (p *Publisher) Publish(ctx context.Context, eventType, userID string, payload any) error {
	env := envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		UserID:    userID,
		Timestamp: p.now().UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.producer.cfg.ServiceName,
			"environment": p.producer.cfg.Environment,
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoginPayload describes a login attempt outcome.
type LoginPayload struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	At        time.Time `json:"at"`
}

// LockPayload describes an account lockout.
type LockPayload struct {
	UserID      string    `json:"user_id"`
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"locked_until"`
	At          time.Time `json:"at"`
}

// RegistrationPayload describes a newly created account.
type RegistrationPayload struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Phone  string    `json:"phone,omitempty"`
	Role   string    `json:"role"`
	At     time.Time `json:"at"`
}

// RevocationPayload describes token or session revocation.
type RevocationPayload struct {
	UserID        string    `json:"user_id"`
	TokensRevoked int64     `json:"tokens_revoked"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}
