package domain

import "fmt"

// Method is the closed set of second-factor methods. New methods must be
// added here and handled in every switch over Method; the compiler plus
// exhaustive switches keep the variants in sync across the codebase.
type Method string

const (
	MethodAuthenticator Method = "authenticator"
	MethodSMS           Method = "sms"
	MethodEmail         Method = "email"
	MethodBiometric     Method = "biometric"
)

// ParseMethod validates a wire-format method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuthenticator, MethodSMS, MethodEmail, MethodBiometric:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown method %q", s)
	}
}

// RequiresTransport reports whether the method delivers codes through the
// external transport collaborator rather than computing them locally.
func (m Method) RequiresTransport() bool {
	switch m {
	case MethodSMS, MethodEmail:
		return true
	case MethodAuthenticator, MethodBiometric:
		return false
	}
	return false
}

func (m Method) String() string { return string(m) }
