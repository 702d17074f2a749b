package domain

import "errors"

// Error taxonomy. Input errors mean the caller should re-prompt, state errors
// indicate a caller bug, environment errors mean "pick a different method",
// and security errors are deliberately generic so failures never reveal which
// check rejected the attempt.
var (
	// ErrInvalidState is returned when an enrollment operation is attempted
	// out of sequence. Correct integrations never see it.
	ErrInvalidState = errors.New("twofactor: operation not valid in current state")

	// ErrVerificationFailed covers every wrong-but-well-formed code or failed
	// biometric assertion. It carries no detail on purpose.
	ErrVerificationFailed = errors.New("twofactor: verification failed")

	// ErrTooManyAttempts is returned once consecutive failures hit the
	// lockout threshold; further attempts are rejected until the cooldown
	// elapses.
	ErrTooManyAttempts = errors.New("twofactor: too many attempts")

	// ErrMethodNotAvailable means the selected method cannot be used in this
	// environment (e.g. no biometric sensor enrolled, no transport wired).
	ErrMethodNotAvailable = errors.New("twofactor: method not available")

	// ErrAuthenticationFailed is a failed or cancelled step-up
	// authentication. Distinct from ErrMethodNotAvailable: the method works,
	// the user just did not pass it.
	ErrAuthenticationFailed = errors.New("twofactor: authentication failed")

	ErrNotEnabled     = errors.New("twofactor: second factor not enabled")
	ErrAlreadyEnabled = errors.New("twofactor: second factor already enabled")
)
