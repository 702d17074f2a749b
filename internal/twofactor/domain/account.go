package domain

import "time"

// Account holds the per-user second-factor state. TOTPSecret is nil until an
// enrollment verification succeeds; EnabledAt is nil until the enrollment
// reaches completion. Both are cleared together when the factor is disabled.
type Account struct {
	ID              string
	PreferredMethod Method
	TOTPSecret      *string    // base32 encoded, nullable
	PasscodeHash    *string    // argon2 encoded, nullable; step-up fallback
	EnabledAt       *time.Time // nullable; set when enrollment completes
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Enabled reports whether the second factor is active for the account.
// Transport-delivered methods complete enrollment without a local secret,
// so only EnabledAt decides.
func (a Account) Enabled() bool {
	return a.EnabledAt != nil
}

// HasSecret reports whether a committed TOTP secret exists. False for
// accounts enrolled with a transport-delivered method.
func (a Account) HasSecret() bool {
	return a.TOTPSecret != nil && *a.TOTPSecret != ""
}
