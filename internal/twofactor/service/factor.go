package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/pkg/cryptox"
	"github.com/homevault/twofactor/pkg/otpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// FactorConfig tunes post-enrollment verification.
type FactorConfig struct {
	Issuer string

	// SkewWindows widens TOTP verification by this many adjacent steps on
	// either side of now (default 0).
	SkewWindows int

	// MaxAttempts consecutive failures lock the account out of interactive
	// verification for LockoutCooldown (defaults 5 and 5m).
	MaxAttempts     int
	LockoutCooldown time.Duration

	// RevokeDevicesOnDisable also clears the trusted-device registry when
	// the factor is disabled.
	RevokeDevicesOnDisable bool
}

// StepUp carries the re-authentication proof required to disable the second
// factor. Exactly one of the two paths is used: a device passcode, or (when
// Passcode is empty) the platform biometric prompt.
type StepUp struct {
	Passcode string
}

// FactorService handles everything after enrollment completes: interactive
// TOTP verification, backup-code recovery, regeneration and export, the
// step-up passcode, and disabling the factor.
type FactorService struct {
	store     store.Store
	biometric Biometric
	cfg       FactorConfig
	attempts  *attemptLimiter
}

func NewFactorService(st store.Store, bio Biometric, cfg FactorConfig) *FactorService {
	if bio == nil {
		bio = DisabledBiometric{}
	}
	return &FactorService{
		store:     st,
		biometric: bio,
		cfg:       cfg,
		attempts:  newAttemptLimiter(cfg.MaxAttempts, cfg.LockoutCooldown),
	}
}

// VerifyTOTP checks an interactive one-time code against the committed
// secret. Malformed codes fail fast with otpx.ErrInvalidCode and never count
// as attempts; well-formed mismatches count toward the lockout threshold.
func (s *FactorService) VerifyTOTP(ctx context.Context, accountID, code string) error {
	now := time.Now()
	if s.attempts.locked(accountID, now) {
		return domain.ErrTooManyAttempts
	}

	acct, err := s.enabledAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.HasSecret() {
		// Transport-method enrollment; there is no local secret to check.
		return domain.ErrMethodNotAvailable
	}

	secret, err := otpx.DecodeSecret(*acct.TOTPSecret)
	if err != nil {
		return fmt.Errorf("decode stored secret: %w", err)
	}

	ok, err := otpx.Verify(secret, code, now, otpx.Options{Skew: s.cfg.SkewWindows})
	if err != nil {
		return err
	}
	if !ok {
		if s.attempts.fail(accountID, now) {
			slogx.FromContext(ctx).Warn("verification locked out",
				slog.String("account_id", accountID))
			return domain.ErrTooManyAttempts
		}
		return domain.ErrVerificationFailed
	}

	s.attempts.reset(accountID)
	return nil
}

// Recover consumes one backup code, case-insensitively. Returns false when
// the code is not in the active set, including when it was already used; a
// consumed code never works twice.
func (s *FactorService) Recover(ctx context.Context, accountID, code string) (bool, error) {
	if _, err := s.enabledAccount(ctx, accountID); err != nil {
		return false, err
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	used, err := s.store.BackupCodes().ConsumeBackupCode(ctx, accountID, normalized)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	if used {
		s.attempts.reset(accountID)
		slogx.FromContext(ctx).Info("backup code consumed",
			slog.String("account_id", accountID))
	}
	return used, nil
}

// RemainingBackupCodes returns how many unconsumed codes the account holds.
func (s *FactorService) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	if _, err := s.enabledAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return s.store.BackupCodes().CountBackupCodes(ctx, accountID)
}

// RegenerateBackupCodes replaces the entire backup code set with a fresh
// batch after the caller proves possession with a current TOTP code. Every
// previously issued code, consumed or not, stops working.
func (s *FactorService) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if err := s.VerifyTOTP(ctx, accountID, totpCode); err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes(defaultBackupCodeCount, defaultBackupCodeLength)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		for _, code := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, accountID, code); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}

	slogx.FromContext(ctx).Info("backup codes regenerated",
		slog.String("account_id", accountID))
	return codes, nil
}

// ExportBackupCodes returns the currently active set in issuance order, for
// rendering into the downloadable document. Consumed codes are absent.
func (s *FactorService) ExportBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if _, err := s.enabledAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.BackupCodes().ListBackupCodes(ctx, accountID)
}

// SetPasscode provisions the step-up passcode used as the disable fallback
// when no biometric sensor is available.
func (s *FactorService) SetPasscode(ctx context.Context, accountID, passcode string) error {
	if len(passcode) < 6 {
		return fmt.Errorf("%w: passcode must be at least 6 characters", domain.ErrAuthenticationFailed)
	}
	if err := s.store.Accounts().EnsureAccount(ctx, accountID); err != nil {
		return err
	}
	hash, err := cryptox.HashPasscode(passcode)
	if err != nil {
		return fmt.Errorf("hash passcode: %w", err)
	}
	return s.store.Accounts().UpdatePasscodeHash(ctx, accountID, hash)
}

// Disable turns the second factor off after a successful step-up. The
// committed secret and every backup code are destroyed atomically; trusted
// devices go with them when RevokeDevicesOnDisable is set.
func (s *FactorService) Disable(ctx context.Context, accountID string, stepUp StepUp) error {
	acct, err := s.enabledAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.verifyStepUp(ctx, acct, stepUp); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().DisableFactor(ctx, accountID); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return err
		}
		if s.cfg.RevokeDevicesOnDisable {
			return tx.TrustedDevices().DeleteAllTrustedDevices(ctx, accountID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("disable factor: %w", err)
	}

	s.attempts.reset(accountID)
	slogx.FromContext(ctx).Info("second factor disabled",
		slog.String("account_id", accountID))
	return nil
}

// SweepLockouts drops expired lockout entries. Called by housekeeping.
func (s *FactorService) SweepLockouts(now time.Time) int {
	return s.attempts.sweep(now)
}

// verifyStepUp checks the re-authentication proof: the stored passcode when
// one is supplied, the biometric prompt otherwise. Failures are reported as
// ErrAuthenticationFailed without detail.
func (s *FactorService) verifyStepUp(ctx context.Context, acct domain.Account, stepUp StepUp) error {
	if stepUp.Passcode != "" {
		if acct.PasscodeHash == nil {
			return domain.ErrAuthenticationFailed
		}
		if err := cryptox.VerifyPasscode(stepUp.Passcode, *acct.PasscodeHash); err != nil {
			if errors.Is(err, cryptox.ErrPasscodeMismatch) {
				return domain.ErrAuthenticationFailed
			}
			return fmt.Errorf("verify passcode: %w", err)
		}
		return nil
	}
	if err := s.biometric.Authenticate(ctx, "Disable two-factor authentication"); err != nil {
		return mapBiometricErr(err)
	}
	return nil
}

// enabledAccount loads the account and requires the factor to be active.
func (s *FactorService) enabledAccount(ctx context.Context, accountID string) (domain.Account, error) {
	acct, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, domain.ErrNotEnabled
		}
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !acct.Enabled() {
		return domain.Account{}, domain.ErrNotEnabled
	}
	return acct, nil
}
