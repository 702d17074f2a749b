package otpx

import (
	"encoding/base32"
	"errors"
)

// ErrMalformedInput reports a string that is not unpadded RFC 4648 base32.
var ErrMalformedInput = errors.New("otpx: malformed base32 input")

// Shared secrets travel as unpadded RFC 4648 base32 (A-Z2-7) so they can be
// typed into authenticator apps by hand.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret encodes raw secret bytes to unpadded base32. The output length
// is ceil(len(b)*8/5) characters.
func EncodeSecret(b []byte) string {
	return secretEncoding.EncodeToString(b)
}

// DecodeSecret decodes an unpadded base32 string. Any character outside the
// A-Z2-7 alphabet fails with ErrMalformedInput.
func DecodeSecret(s string) ([]byte, error) {
	b, err := secretEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedInput
	}
	return b, nil
}
