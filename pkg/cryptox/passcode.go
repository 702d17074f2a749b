package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters per the OWASP minimum recommendation.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

// ErrPasscodeMismatch is returned when a passcode does not match its hash.
var ErrPasscodeMismatch = errors.New("cryptox: passcode does not match")

// HashPasscode generates a PHC-format Argon2id hash string including salt and
// parameters. Used for the step-up passcode that guards disabling the second
// factor when biometrics are unavailable.
func HashPasscode(passcode string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(passcode), salt, iterations, memory, parallelism, keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory, iterations, parallelism, b64Salt, b64Hash,
	), nil
}

// VerifyPasscode compares a plaintext passcode against a PHC-style Argon2id
// hash in constant time.
func VerifyPasscode(passcode, encodedHash string) error {
	// Parse PHC format: $argon2id$v=19$m=X,t=Y,p=Z$salt$hash
	parts := splitDollar(encodedHash)
	if len(parts) != 6 {
		return errors.New("cryptox: invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return errors.New("cryptox: invalid hash format: not argon2id")
	}
	if parts[2] != "v=19" {
		return errors.New("cryptox: invalid hash format: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("cryptox: invalid hash format: failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("cryptox: invalid hash format: failed to decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("cryptox: invalid hash format: failed to decode hash: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(passcode),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - hash lengths are bounded
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasscodeMismatch
}

func splitDollar(s string) []string {
	parts := make([]string, 0, 6)
	start := 0
	for i := range len(s) {
		if s[i] == '$' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
