package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet for recovery codes: unambiguous enough to read over the phone,
// large enough that 8 characters give ~41 bits of entropy.
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns length characters drawn uniformly from A-Z0-9 using
// crypto/rand. When length is even the result is split in half with a dash
// (e.g. "7KQ2-M9XA") for readability.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		code[i] = codeCharset[n.Int64()]
	}

	if length%2 == 0 {
		half := length / 2
		return string(code[:half]) + "-" + string(code[half:]), nil
	}
	return string(code), nil
}
