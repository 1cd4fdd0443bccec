package adelauth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/kendoaustine/adela-auth/credstore"
)

// OTP purposes accepted by RequestOTP and VerifyOTP.
const (
	OTPLogin         = "login"
	OTPPhoneVerify   = "phone_verify"
	OTPPasswordReset = "password_reset"
)

// RequestOTP describes the requestotp operation and its observable behavior.
//
// RequestOTP may return an error when input validation, dependency calls, or security checks fail.
// RequestOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The generated code is returned for out-of-band delivery. Re-requesting
// overwrites the previous code and resets its attempt budget.
func (e *Engine) RequestOTP(ctx context.Context, otpType, identifier string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if !validOTPType(otpType) {
		return "", errWrap(ErrValidation, errors.New("unknown otp type"))
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", errWrap(ErrValidation, errors.New("identifier is required"))
	}

	code, err := e.generateOTP()
	if err != nil {
		return "", errWrap(ErrDependencyUnavailable, err)
	}
	if err := e.creds.SetOTP(ctx, otpType, identifier, code, e.config.OTP.TTL); err != nil {
		return "", e.cacheErr(err)
	}
	return code, nil
}

// VerifyOTP checks a submitted code. Expired, exhausted, or never-issued
// codes report ErrNotFound; a wrong code reports ErrAuthentication and
// burns one attempt.
func (e *Engine) VerifyOTP(ctx context.Context, otpType, identifier, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !validOTPType(otpType) {
		return errWrap(ErrValidation, errors.New("unknown otp type"))
	}

	res, err := e.creds.VerifyOTP(ctx, otpType, identifier, code)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return ErrNotFound
		}
		return e.cacheErr(err)
	}
	if !res.Valid {
		return errWrap(ErrAuthentication, errors.New(res.Reason))
	}
	return nil
}

func (e *Engine) generateOTP() (string, error) {
	var sb strings.Builder
	for i := 0; i < e.config.OTP.Digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

func validOTPType(otpType string) bool {
	switch otpType {
	case OTPLogin, OTPPhoneVerify, OTPPasswordReset:
		return true
	}
	return false
}
