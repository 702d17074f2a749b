package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/pkg/idx"
	"github.com/homevault/twofactor/pkg/slogx"
)

// DeviceService manages the trusted-device registry. Trusting a device lets
// it bypass interactive verification until it is revoked or its trust goes
// stale.
type DeviceService struct {
	store store.Store

	// TrustTTL bounds how long a device stays trusted after its last use.
	// Zero means trust never expires, matching the reference client.
	TrustTTL time.Duration
}

func NewDeviceService(st store.Store, trustTTL time.Duration) *DeviceService {
	return &DeviceService{store: st, TrustTTL: trustTTL}
}

// Trust registers deviceID as trusted, or refreshes it when already
// registered: the operation is idempotent per (account, device) pair and
// never produces duplicates. The factor must be enabled first.
func (s *DeviceService) Trust(ctx context.Context, accountID, deviceID, name string, deviceType domain.DeviceType) (domain.TrustedDevice, error) {
	if deviceID == "" {
		return domain.TrustedDevice{}, fmt.Errorf("device id must not be empty")
	}
	if _, err := domain.ParseDeviceType(deviceType.String()); err != nil {
		return domain.TrustedDevice{}, err
	}
	if err := s.requireEnabled(ctx, accountID); err != nil {
		return domain.TrustedDevice{}, err
	}

	now := time.Now().UTC()
	err := s.store.TrustedDevices().UpsertTrustedDevice(ctx, domain.TrustedDevice{
		ID:         idx.New().String(),
		AccountID:  accountID,
		DeviceID:   deviceID,
		DeviceName: name,
		DeviceType: deviceType,
		TrustedAt:  now,
		LastUsedAt: now,
	})
	if err != nil {
		return domain.TrustedDevice{}, fmt.Errorf("trust device: %w", err)
	}

	// Re-read so a refreshed device keeps its original trusted_at and ID.
	d, err := s.store.TrustedDevices().GetTrustedDevice(ctx, accountID, deviceID)
	if err != nil {
		return domain.TrustedDevice{}, fmt.Errorf("load trusted device: %w", err)
	}

	slogx.FromContext(ctx).Info("device trusted",
		slog.String("account_id", accountID),
		slog.String("device_id", deviceID),
		slog.String("device_type", deviceType.String()))
	return d, nil
}

// Revoke removes one device from the registry. Revoking an unknown device is
// a no-op, not an error.
func (s *DeviceService) Revoke(ctx context.Context, accountID, deviceID string) error {
	if err := s.store.TrustedDevices().DeleteTrustedDevice(ctx, accountID, deviceID); err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	slogx.FromContext(ctx).Info("device revoked",
		slog.String("account_id", accountID),
		slog.String("device_id", deviceID))
	return nil
}

// RevokeAll clears the whole registry for an account.
func (s *DeviceService) RevokeAll(ctx context.Context, accountID string) error {
	return s.store.TrustedDevices().DeleteAllTrustedDevices(ctx, accountID)
}

// List returns the account's trusted devices, most recently trusted first.
func (s *DeviceService) List(ctx context.Context, accountID string) ([]domain.TrustedDevice, error) {
	return s.store.TrustedDevices().ListTrustedDevices(ctx, accountID)
}

// IsTrusted reports whether deviceID may currently bypass verification,
// without refreshing its trust.
func (s *DeviceService) IsTrusted(ctx context.Context, accountID, deviceID string) (bool, error) {
	_, fresh, err := s.lookup(ctx, accountID, deviceID)
	return fresh, err
}

// Bypass checks whether deviceID may skip interactive verification and, when
// it may, refreshes its last-used timestamp so active devices stay trusted.
// Devices whose trust has gone stale are removed and report false.
func (s *DeviceService) Bypass(ctx context.Context, accountID, deviceID string) (bool, error) {
	d, fresh, err := s.lookup(ctx, accountID, deviceID)
	if err != nil || !fresh {
		return false, err
	}
	if err := s.store.TrustedDevices().TouchTrustedDevice(ctx, accountID, d.DeviceID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("touch trusted device: %w", err)
	}
	return true, nil
}

// SweepStale removes devices whose last use predates the trust TTL. No-op
// when trust never expires.
func (s *DeviceService) SweepStale(ctx context.Context, now time.Time) error {
	if s.TrustTTL <= 0 {
		return nil
	}
	return s.store.TrustedDevices().DeleteTrustedDevicesLastUsedBefore(ctx, now.Add(-s.TrustTTL))
}

func (s *DeviceService) lookup(ctx context.Context, accountID, deviceID string) (domain.TrustedDevice, bool, error) {
	d, err := s.store.TrustedDevices().GetTrustedDevice(ctx, accountID, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TrustedDevice{}, false, nil
		}
		return domain.TrustedDevice{}, false, fmt.Errorf("load trusted device: %w", err)
	}
	if s.TrustTTL > 0 && time.Since(d.LastUsedAt) > s.TrustTTL {
		// Stale trust: drop the row so the registry reflects reality.
		if err := s.store.TrustedDevices().DeleteTrustedDevice(ctx, accountID, deviceID); err != nil {
			return domain.TrustedDevice{}, false, fmt.Errorf("expire trusted device: %w", err)
		}
		return domain.TrustedDevice{}, false, nil
	}
	return d, true, nil
}

func (s *DeviceService) requireEnabled(ctx context.Context, accountID string) error {
	acct, err := s.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrNotEnabled
		}
		return fmt.Errorf("load account: %w", err)
	}
	if !acct.Enabled() {
		return domain.ErrNotEnabled
	}
	return nil
}
