package otpx

import (
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Codes are derived with HMAC-SHA256, not the RFC 6238 default of SHA-1.
// This follows the HomeVault client implementation and is a deliberate
// compatibility decision: authenticator apps that ignore the algorithm and
// assume SHA-1 will not compute matching codes. Changing it invalidates
// every provisioned secret, so it is a constant rather than a config knob.
const Algorithm = otp.AlgorithmSHA256

const (
	DefaultPeriod = 30 * time.Second
	DefaultDigits = 6
)

// ErrInvalidCode reports a candidate with the wrong length or non-digit
// characters. This is a precondition violation, distinct from a well-formed
// code that simply does not match.
var ErrInvalidCode = errors.New("otpx: malformed one-time code")

// Options control code derivation. The zero value means the defaults:
// 30-second steps, 6 digits, and no skew tolerance.
//
// Skew widens verification to accept codes from +-Skew adjacent time steps.
// The default of 0 matches the reference behavior of checking only the
// current step; production deployments should set 1 to tolerate clock drift.
type Options struct {
	Period time.Duration
	Digits int
	Skew   int
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = DefaultPeriod
	}
	if o.Digits <= 0 {
		o.Digits = DefaultDigits
	}
	return o
}

func (o Options) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(o.Period.Seconds()),
		Skew:      uint(o.Skew),
		Digits:    otp.Digits(o.Digits),
		Algorithm: Algorithm,
	}
}

// Generate derives the one-time code for the time step containing at.
// It is a pure function of (secret, floor(unix(at)/period)).
func Generate(secret []byte, at time.Time, opts Options) (string, error) {
	opts = opts.withDefaults()
	return totp.GenerateCodeCustom(EncodeSecret(secret), at, opts.validateOpts())
}

// Verify checks candidate against the code for the time step containing at,
// plus opts.Skew adjacent steps on either side. Malformed candidates fail
// with ErrInvalidCode before any code is derived. The underlying comparison
// is constant-time.
func Verify(secret []byte, candidate string, at time.Time, opts Options) (bool, error) {
	opts = opts.withDefaults()
	if len(candidate) != opts.Digits || !allDigits(candidate) {
		return false, ErrInvalidCode
	}
	return totp.ValidateCustom(candidate, EncodeSecret(secret), at, opts.validateOpts())
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
