package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/pkg/otpx"
	"github.com/homevault/twofactor/pkg/slogx"
)

const (
	defaultSessionTTL = 15 * time.Minute
	qrCodeSize        = 256 // px, square
)

// EnrollmentConfig tunes the setup flow. The zero value is usable; every
// field falls back to the documented default.
type EnrollmentConfig struct {
	// Issuer appears in provisioning URIs and authenticator app listings.
	Issuer string

	// SessionTTL bounds how long a half-finished enrollment may sit idle
	// before housekeeping discards it (default 15m).
	SessionTTL time.Duration

	// BackupCodeCount and BackupCodeLength shape the recovery code batch
	// issued after verification (default 10 codes of 8 characters).
	BackupCodeCount  int
	BackupCodeLength int

	// MaxAttempts failed verifications in a row lock the session for
	// LockoutCooldown (defaults 5 and 5m).
	MaxAttempts     int
	LockoutCooldown time.Duration

	// SkewWindows is the number of adjacent TOTP steps accepted on either
	// side of now during enrollment verification (default 0).
	SkewWindows int
}

func (c EnrollmentConfig) withDefaults() EnrollmentConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.BackupCodeCount <= 0 {
		c.BackupCodeCount = defaultBackupCodeCount
	}
	if c.BackupCodeLength <= 0 {
		c.BackupCodeLength = defaultBackupCodeLength
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.LockoutCooldown <= 0 {
		c.LockoutCooldown = defaultLockoutCooldown
	}
	return c
}

// enrollmentSession is the in-memory record of one account's setup progress.
// Sessions are never persisted: an uncommitted secret must not outlive the
// process, and losing a half-done enrollment on restart just means starting
// over.
type enrollmentSession struct {
	state       domain.EnrollmentState
	method      domain.Method
	setup       *otpx.Setup // authenticator only, nil otherwise
	destination string      // sms / email only
	ticket      string      // transport round-trip handle
	expiresAt   time.Time
}

// EnrollmentService drives the five-step setup flow:
//
//	selecting_method -> configuring_method -> verifying ->
//	issuing_backup_codes -> completed
//
// Transitions are strictly forward. Out-of-order calls fail with
// ErrInvalidState; the only way back is Abandon, which discards the session
// and any uncommitted secret. Nothing touches the database until the user
// proves possession of the configured method.
type EnrollmentService struct {
	store     store.Store
	biometric Biometric
	transport Transport // nil when no provider is wired
	cfg       EnrollmentConfig

	mu       sync.Mutex
	sessions map[string]*enrollmentSession
	attempts *attemptLimiter
}

func NewEnrollmentService(st store.Store, bio Biometric, tr Transport, cfg EnrollmentConfig) *EnrollmentService {
	cfg = cfg.withDefaults()
	if bio == nil {
		bio = DisabledBiometric{}
	}
	return &EnrollmentService{
		store:     st,
		biometric: bio,
		transport: tr,
		cfg:       cfg,
		sessions:  make(map[string]*enrollmentSession),
		attempts:  newAttemptLimiter(cfg.MaxAttempts, cfg.LockoutCooldown),
	}
}

// AvailableMethods lists the methods this deployment can actually serve.
// Authenticator always works; sms and email need a transport provider;
// biometric needs an enrolled sensor on the client device.
func (s *EnrollmentService) AvailableMethods(ctx context.Context) []domain.Method {
	methods := []domain.Method{domain.MethodAuthenticator}
	if s.transport != nil {
		methods = append(methods, domain.MethodSMS, domain.MethodEmail)
	}
	if s.biometric.Available(ctx) {
		methods = append(methods, domain.MethodBiometric)
	}
	return methods
}

// State reports the account's current enrollment state. Accounts without a
// live session are not_started.
func (s *EnrollmentService) State(accountID string) domain.EnrollmentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[accountID]
	if !ok || !sess.expiresAt.After(time.Now()) {
		return domain.StateNotStarted
	}
	return sess.state
}

// Start opens a fresh enrollment session. Fails with ErrAlreadyEnabled when
// the factor is already active and ErrInvalidState when a live session
// exists; re-enrollment goes through Disable or Abandon first.
func (s *EnrollmentService) Start(ctx context.Context, accountID string) (domain.EnrollmentState, error) {
	if err := s.store.Accounts().EnsureAccount(ctx, accountID); err != nil {
		return domain.StateNotStarted, fmt.Errorf("ensure account: %w", err)
	}
	acct, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return domain.StateNotStarted, fmt.Errorf("load account: %w", err)
	}
	if acct.Enabled() {
		return domain.StateNotStarted, domain.ErrAlreadyEnabled
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[accountID]; ok && sess.expiresAt.After(now) {
		return sess.state, domain.ErrInvalidState
	}
	s.sessions[accountID] = &enrollmentSession{
		state:     domain.StateSelectingMethod,
		expiresAt: now.Add(s.cfg.SessionTTL),
	}

	slogx.FromContext(ctx).Info("enrollment started", slog.String("account_id", accountID))
	return domain.StateSelectingMethod, nil
}

// SelectMethod records the chosen method and prepares its material. For the
// authenticator method this provisions a fresh secret and returns the
// otpauth URI, manual-entry code and a rendered QR image; the secret stays
// in the session until verification succeeds. For sms and email a one-time
// code is dispatched to destination. Advances to configuring_method.
func (s *EnrollmentService) SelectMethod(ctx context.Context, accountID string, method domain.Method, destination string) (domain.EnrollmentSetup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(accountID, domain.StateSelectingMethod)
	if err != nil {
		return domain.EnrollmentSetup{}, err
	}

	var setup domain.EnrollmentSetup
	switch method {
	case domain.MethodAuthenticator:
		provisioned, err := otpx.Provision(accountID, s.cfg.Issuer)
		if err != nil {
			return domain.EnrollmentSetup{}, fmt.Errorf("provision secret: %w", err)
		}
		png, err := qrcode.Encode(provisioned.ProvisioningURI, qrcode.Medium, qrCodeSize)
		if err != nil {
			return domain.EnrollmentSetup{}, fmt.Errorf("render qr code: %w", err)
		}
		sess.setup = &provisioned
		setup = domain.EnrollmentSetup{
			Method:          method,
			Secret:          provisioned.SecretBase32,
			ProvisioningURI: provisioned.ProvisioningURI,
			ManualEntryCode: provisioned.ManualEntryCode,
			QRCodePNG:       png,
		}

	case domain.MethodSMS, domain.MethodEmail:
		if s.transport == nil {
			return domain.EnrollmentSetup{}, domain.ErrMethodNotAvailable
		}
		if destination == "" {
			return domain.EnrollmentSetup{}, fmt.Errorf("%w: destination required for %s", domain.ErrMethodNotAvailable, method)
		}
		ticket, err := s.transport.SendCode(ctx, destination)
		if err != nil {
			return domain.EnrollmentSetup{}, fmt.Errorf("send code: %w", err)
		}
		sess.destination = destination
		sess.ticket = ticket
		setup = domain.EnrollmentSetup{Method: method}

	case domain.MethodBiometric:
		if !s.biometric.Available(ctx) {
			return domain.EnrollmentSetup{}, domain.ErrMethodNotAvailable
		}
		setup = domain.EnrollmentSetup{Method: method}

	default:
		return domain.EnrollmentSetup{}, fmt.Errorf("%w: unknown method %q", domain.ErrMethodNotAvailable, method)
	}

	sess.method = method
	sess.state = sess.state.Next()
	return setup, nil
}

// Confirm acknowledges that the user finished configuring the method (seeded
// the authenticator app, received the transport code, confirmed the
// biometric prompt is wanted). Advances to verifying.
func (s *EnrollmentService) Confirm(ctx context.Context, accountID string) (domain.EnrollmentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(accountID, domain.StateConfiguringMethod)
	if err != nil {
		return domain.StateNotStarted, err
	}
	sess.state = sess.state.Next()
	return sess.state, nil
}

// VerifyCode checks a candidate code during the verifying step. On success
// the secret (if any) is committed and a fresh batch of backup codes is
// issued, both inside one transaction; the returned slice is the only time
// the caller sees the codes alongside the transition.
//
// Malformed candidates fail with otpx.ErrInvalidCode and do not count as
// attempts. Well-formed mismatches count toward the lockout threshold.
func (s *EnrollmentService) VerifyCode(ctx context.Context, accountID, code string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(accountID, domain.StateVerifying)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if s.attempts.locked(accountID, now) {
		return nil, domain.ErrTooManyAttempts
	}

	var ok bool
	switch sess.method {
	case domain.MethodAuthenticator:
		ok, err = otpx.Verify(sess.setup.Secret, code, now, otpx.Options{Skew: s.cfg.SkewWindows})
		if err != nil {
			return nil, err // otpx.ErrInvalidCode: re-prompt, no attempt spent
		}
	case domain.MethodSMS, domain.MethodEmail:
		ok, err = s.transport.VerifyCode(ctx, sess.ticket, code)
		if err != nil {
			return nil, fmt.Errorf("transport verify: %w", err)
		}
	case domain.MethodBiometric:
		// Biometric enrollments verify through VerifyBiometric.
		return nil, domain.ErrInvalidState
	}

	if !ok {
		return nil, s.recordFailure(ctx, accountID, now)
	}
	return s.completeVerification(ctx, accountID, sess)
}

// VerifyBiometric runs the platform biometric prompt for sessions that chose
// the biometric method, then completes verification the same way VerifyCode
// does for code-based methods.
func (s *EnrollmentService) VerifyBiometric(ctx context.Context, accountID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(accountID, domain.StateVerifying)
	if err != nil {
		return nil, err
	}
	if sess.method != domain.MethodBiometric {
		return nil, domain.ErrInvalidState
	}

	now := time.Now()
	if s.attempts.locked(accountID, now) {
		return nil, domain.ErrTooManyAttempts
	}

	if err := s.biometric.Authenticate(ctx, "Enable two-factor authentication"); err != nil {
		mapped := mapBiometricErr(err)
		if errors.Is(mapped, domain.ErrAuthenticationFailed) {
			return nil, s.recordFailure(ctx, accountID, now)
		}
		return nil, mapped
	}
	return s.completeVerification(ctx, accountID, sess)
}

// Acknowledge confirms the user saved their backup codes. The factor is
// enabled and the session ends; the enrollment is complete.
func (s *EnrollmentService) Acknowledge(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(accountID, domain.StateIssuingBackupCodes)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePreferredMethod(ctx, accountID, sess.method); err != nil {
			return fmt.Errorf("set preferred method: %w", err)
		}
		if err := tx.Accounts().EnableFactor(ctx, accountID); err != nil {
			return fmt.Errorf("enable factor: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	delete(s.sessions, accountID)
	slogx.FromContext(ctx).Info("enrollment completed",
		slog.String("account_id", accountID),
		slog.String("method", sess.method.String()))
	return nil
}

// Abandon discards the session from any state short of completed. A secret
// already committed by a successful verification is rolled back along with
// its backup codes, since the factor was never enabled.
func (s *EnrollmentService) Abandon(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[accountID]
	if !ok {
		return nil
	}
	delete(s.sessions, accountID)
	s.attempts.reset(accountID)

	if sess.state < domain.StateIssuingBackupCodes {
		return nil
	}
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().DisableFactor(ctx, accountID); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID)
	})
}

// SweepExpiredSessions drops sessions whose TTL has elapsed. Called
// periodically by housekeeping. Returns the number removed.
func (s *EnrollmentService) SweepExpiredSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.expiresAt.After(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// session fetches the live session for accountID and checks it is in want.
// Callers hold s.mu.
func (s *EnrollmentService) session(accountID string, want domain.EnrollmentState) (*enrollmentSession, error) {
	sess, ok := s.sessions[accountID]
	if !ok || !sess.expiresAt.After(time.Now()) {
		delete(s.sessions, accountID)
		return nil, domain.ErrInvalidState
	}
	if sess.state != want {
		return nil, domain.ErrInvalidState
	}
	return sess, nil
}

// recordFailure charges one failed attempt and returns the error the caller
// should surface. Callers hold s.mu.
func (s *EnrollmentService) recordFailure(ctx context.Context, accountID string, now time.Time) error {
	if s.attempts.fail(accountID, now) {
		slogx.FromContext(ctx).Warn("enrollment verification locked out",
			slog.String("account_id", accountID))
		return domain.ErrTooManyAttempts
	}
	return domain.ErrVerificationFailed
}

// completeVerification commits the secret (authenticator method only) and
// issues the backup code batch atomically, then advances the session to
// issuing_backup_codes. Callers hold s.mu.
func (s *EnrollmentService) completeVerification(ctx context.Context, accountID string, sess *enrollmentSession) ([]string, error) {
	codes, err := generateBackupCodes(s.cfg.BackupCodeCount, s.cfg.BackupCodeLength)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if sess.setup != nil {
			if err := tx.Accounts().CommitSecret(ctx, accountID, sess.setup.SecretBase32); err != nil {
				return fmt.Errorf("commit secret: %w", err)
			}
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
			return fmt.Errorf("clear stale codes: %w", err)
		}
		for _, code := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, accountID, code); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attempts.reset(accountID)
	sess.state = domain.StateIssuingBackupCodes
	slogx.FromContext(ctx).Info("enrollment verified",
		slog.String("account_id", accountID),
		slog.String("method", sess.method.String()))
	return codes, nil
}
