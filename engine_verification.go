package adelauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kendoaustine/adela-auth/credstore"
	"github.com/kendoaustine/adela-auth/internal/events"
	"github.com/kendoaustine/adela-auth/internal/userstore"
)

// RequestEmailVerification describes the requestemailverification operation and its observable behavior.
//
// RequestEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// RequestEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return "", e.storeErr(err)
	}
	if user.EmailVerifiedAt != nil {
		return "", errWrap(ErrValidation, errors.New("email already verified"))
	}

	tokenValue, err := e.creds.StoreEmailVerificationToken(ctx, user.ID, e.config.EmailVerification.TTL)
	if err != nil {
		return "", e.cacheErr(err)
	}
	return tokenValue, nil
}

// ConfirmEmailVerification consumes a verification token and marks the
// account's email verified. Single use: a second confirmation with the
// same token fails.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, verificationToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	userID, err := e.creds.ConsumeEmailVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) || errors.Is(err, credstore.ErrMalformedToken) {
			return errWrap(ErrAuthentication, err)
		}
		return e.cacheErr(err)
	}

	if err := e.users.MarkEmailVerified(ctx, userID); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return errWrap(ErrAuthentication, err)
		}
		return e.storeErr(err)
	}

	e.logger.Info("email verified", zap.String("user_id", userID))
	e.publish(events.TypeAccountVerified, userID, events.RegistrationPayload{
		UserID: userID,
		At:     e.now().UTC(),
	})
	return nil
}

// ConfirmPhoneVerification validates a phone OTP and marks the account's
// phone verified.
func (e *Engine) ConfirmPhoneVerification(ctx context.Context, userID, phone, code string) error {
	if err := e.VerifyOTP(ctx, OTPPhoneVerify, phone, code); err != nil {
		return err
	}
	if err := e.users.MarkPhoneVerified(ctx, userID); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return errWrap(ErrAuthentication, err)
		}
		return e.storeErr(err)
	}

	e.logger.Info("phone verified", zap.String("user_id", userID))
	e.publish(events.TypeAccountVerified, userID, events.RegistrationPayload{
		UserID: userID,
		Phone:  phone,
		At:     e.now().UTC(),
	})
	return nil
}
