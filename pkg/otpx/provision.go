package otpx

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SecretSize is the raw secret length in bytes. 160 bits per the RFC 4226
// recommendation, which encodes to 32 base32 characters.
const SecretSize = 20

// ErrInvalidConfiguration reports an empty issuer or account label. These are
// caller-controlled strings, so this indicates a wiring bug rather than bad
// user input.
var ErrInvalidConfiguration = errors.New("otpx: issuer and account label must not be empty")

// Setup is the result of provisioning a new shared secret. Nothing here is
// persisted; the caller holds the secret until the user proves possession.
type Setup struct {
	Secret          []byte // raw shared secret
	SecretBase32    string // unpadded base32 form
	ProvisioningURI string // otpauth:// URL consumed by authenticator apps
	ManualEntryCode string // base32 in 4-char groups for hand transcription
}

// Provision generates a fresh shared secret from crypto/rand and derives the
// provisioning URI and manual-entry string for it.
//
// The URI carries exactly the secret and issuer parameters, in that order,
// for compatibility with the HomeVault client's QR scanner:
//
//	otpauth://totp/{issuer}:{accountLabel}?secret={base32}&issuer={issuer}
func Provision(accountLabel, issuer string) (Setup, error) {
	if accountLabel == "" || issuer == "" {
		return Setup{}, ErrInvalidConfiguration
	}

	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return Setup{}, fmt.Errorf("otpx: failed to generate secret: %w", err)
	}

	encoded := EncodeSecret(secret)
	uri := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer),
		url.PathEscape(accountLabel),
		encoded,
		url.QueryEscape(issuer),
	)

	return Setup{
		Secret:          secret,
		SecretBase32:    encoded,
		ProvisioningURI: uri,
		ManualEntryCode: groupBy4(encoded),
	}, nil
}

// groupBy4 splits s into space-separated groups of four characters. Purely a
// transcription aid; it carries no information beyond the secret itself.
func groupBy4(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := min(i+4, len(s))
		b.WriteString(s[i:end])
	}
	return b.String()
}
