package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/homevault/twofactor/pkg/cryptox"
)

const (
	defaultBackupCodeCount  = 10
	defaultBackupCodeLength = 8
)

// generateBackupCodes returns count distinct codes of length characters
// each. Collisions within a batch are vanishingly unlikely at 41 bits per
// code but resampled anyway so the batch is guaranteed unique.
func generateBackupCodes(count, length int) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := cryptox.GenerateCode(length)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// RenderBackupCodesText formats the active codes as the plain-text document
// users download and print. Each code works exactly once.
func RenderBackupCodesText(issuer string, codes []string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Two-Factor Backup Codes\n", issuer)
	fmt.Fprintf(&b, "Generated: %s\n\n", now.UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("Keep these codes somewhere safe. Each code can be used once.\n\n")
	for i, code := range codes {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, code)
	}
	return b.String()
}
