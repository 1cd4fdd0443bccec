package credstore

import (
	"context"
	"fmt"
	"time"

	"github.com/kendoaustine/adela-auth/cache"
)

const otpMaxAttempts = 3

// OTPResult reports the outcome of an OTP verification attempt.
type OTPResult struct {
	Valid  bool
	Reason string
}

// verifyOTPScript checks a submitted code against the stored one while
// keeping the attempt counter monotonic. The counter key shares the code
// key's remaining TTL so both vanish together. Once the counter passes the
// attempt limit the record is destroyed and all later calls see a miss,
// including the call that crossed the limit.
var verifyOTPScript = &cache.Script{
	Name: "otp_verify",
	Src: `local code = redis.call("GET", KEYS[1])
if not code then
  redis.call("DEL", KEYS[2])
  return "missing"
end
local attempts = redis.call("INCR", KEYS[2])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
if attempts > tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
  return "missing"
end
if code == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return "ok"
end
return "mismatch"`,
}

// SetOTP stores a one-time code for the identifier, overwriting any
// previous code and resetting its attempt counter. otpType distinguishes
// delivery purposes (login, phone_verify, password_reset).
func (s *Store) SetOTP(ctx context.Context, otpType, identifier, code string, ttl time.Duration) error {
	if identifier == "" || code == "" {
		return fmt.Errorf("%w: otp requires an identifier and code", ErrNotFound)
	}
	if err := s.cache.Set(ctx, s.otpKey(otpType, identifier), []byte(code), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := s.cache.Del(ctx, s.otpAttemptsKey(otpType, identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// VerifyOTP checks a submitted code. Every call counts as an attempt, so
// the counter never moves backwards; after the attempt limit is exceeded
// the record is deleted and the call reports ErrNotFound, exactly as if
// the code had expired. A correct code consumes the record.
//
// Performance: 1 Redis command (scripted).
func (s *Store) VerifyOTP(ctx context.Context, otpType, identifier, code string) (*OTPResult, error) {
	keys := []string{
		s.otpKey(otpType, identifier),
		s.otpAttemptsKey(otpType, identifier),
	}
	res, err := s.cache.Eval(ctx, verifyOTPScript, keys, code, otpMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch res {
	case "ok":
		return &OTPResult{Valid: true}, nil
	case "mismatch":
		return &OTPResult{Valid: false, Reason: "code mismatch"}, nil
	default:
		return nil, ErrNotFound
	}
}

// ClearOTP discards any pending code for the identifier.
func (s *Store) ClearOTP(ctx context.Context, otpType, identifier string) error {
	keys := []string{
		s.otpKey(otpType, identifier),
		s.otpAttemptsKey(otpType, identifier),
	}
	if _, err := s.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
