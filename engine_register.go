package adelauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kendoaustine/adela-auth/identity"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// New accounts start unverified and active; verification happens through
// the email or phone flows.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*identity.User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Email == "" && in.Phone == "" {
		return nil, errWrap(ErrValidation, errors.New("email or phone is required"))
	}
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		return nil, errWrap(ErrValidation, errors.New("malformed email"))
	}
	if len(in.Password) < e.config.Account.MinPasswordLength {
		return nil, errWrap(ErrValidation,
			fmt.Errorf("password must be at least %d characters", e.config.Account.MinPasswordLength))
	}
	if !in.Role.Valid() {
		return nil, errWrap(ErrValidation, fmt.Errorf("unknown role %q", in.Role))
	}

	digest, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, errWrap(ErrDependencyUnavailable, err)
	}

	user, err := e.users.Create(ctx, uuid.NewString(), identity.CreateUserInput{
		Email:          in.Email,
		Phone:          in.Phone,
		PasswordDigest: digest,
		Role:           in.Role,
		IsActive:       true,
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, e.storeErr(err)
	}

	e.publish(events.TypeUserRegistered, user.ID, events.RegistrationPayload{
		UserID: user.ID,
		Email:  user.Email,
		Phone:  user.Phone,
		Role:   user.Role.String(),
		At:     e.now().UTC(),
	})
	return user, nil
}
