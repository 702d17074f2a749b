package service

import (
	"context"
	"errors"

	"github.com/homevault/twofactor/internal/twofactor/domain"
)

// Biometric is the device biometric collaborator (Face ID / Touch ID on the
// client platforms). The engine never sees biometric material; it only learns
// whether the prompt succeeded.
type Biometric interface {
	// Available reports whether a biometric sensor exists and is enrolled.
	Available(ctx context.Context) bool

	// Authenticate shows the platform prompt and blocks until the user
	// responds. Non-nil errors are one of the ErrBiometry* sentinels.
	Authenticate(ctx context.Context, reason string) error
}

// Biometric failure causes. User and system cancellation are verification
// failures; NotAvailable removes the method from the available list instead.
var (
	ErrBiometryNotAvailable    = errors.New("biometric: not available on this device")
	ErrBiometryNotEnrolled     = errors.New("biometric: no biometry enrolled")
	ErrBiometryUserCancelled   = errors.New("biometric: cancelled by user")
	ErrBiometrySystemCancelled = errors.New("biometric: cancelled by system")
	ErrBiometryNoPasscode      = errors.New("biometric: device passcode not set")
)

// mapBiometricErr folds collaborator failures into the engine's taxonomy:
// a missing sensor is an environment problem, everything else is a generic
// authentication failure so the caller learns nothing extra.
func mapBiometricErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBiometryNotAvailable) || errors.Is(err, ErrBiometryNotEnrolled) {
		return domain.ErrMethodNotAvailable
	}
	return domain.ErrAuthenticationFailed
}

// Transport delivers one-time codes out of band for the SMS and email
// methods. The wire protocol to the provider is not this service's concern.
type Transport interface {
	// SendCode dispatches a code to destination and returns an opaque
	// ticket used to verify the round trip.
	SendCode(ctx context.Context, destination string) (ticket string, err error)

	// VerifyCode checks a user-submitted code against the ticket.
	VerifyCode(ctx context.Context, ticket, code string) (bool, error)
}

// DisabledBiometric is the default collaborator for deployments without a
// biometric bridge; it reports the method as unavailable.
type DisabledBiometric struct{}

func (DisabledBiometric) Available(context.Context) bool { return false }

func (DisabledBiometric) Authenticate(context.Context, string) error {
	return ErrBiometryNotAvailable
}
