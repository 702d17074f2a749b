package sqlite

import (
	"context"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
)

type trustedDevicesRepo struct {
	q querier
}

func (r *trustedDevicesRepo) UpsertTrustedDevice(ctx context.Context, d domain.TrustedDevice) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO trusted_devices (id, account_id, device_id, device_name, device_type, trusted_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, device_id) DO UPDATE SET
			device_name = excluded.device_name,
			device_type = excluded.device_type,
			last_used_at = excluded.last_used_at`,
		d.ID, d.AccountID, d.DeviceID, d.DeviceName, string(d.DeviceType), d.TrustedAt, d.LastUsedAt)
	return err
}

func (r *trustedDevicesRepo) GetTrustedDevice(ctx context.Context, accountID, deviceID string) (domain.TrustedDevice, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, account_id, device_id, device_name, device_type, trusted_at, last_used_at
		FROM trusted_devices WHERE account_id = ? AND device_id = ?`,
		accountID, deviceID)
	return scanTrustedDevice(row)
}

func (r *trustedDevicesRepo) ListTrustedDevices(ctx context.Context, accountID string) ([]domain.TrustedDevice, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, device_id, device_name, device_type, trusted_at, last_used_at
		FROM trusted_devices WHERE account_id = ? ORDER BY trusted_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.TrustedDevice
	for rows.Next() {
		d, err := scanTrustedDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *trustedDevicesRepo) TouchTrustedDevice(ctx context.Context, accountID, deviceID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE trusted_devices SET last_used_at = ? WHERE account_id = ? AND device_id = ?`,
		at.UTC(), accountID, deviceID)
	return err
}

func (r *trustedDevicesRepo) DeleteTrustedDevice(ctx context.Context, accountID, deviceID string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM trusted_devices WHERE account_id = ? AND device_id = ?`,
		accountID, deviceID)
	return err
}

func (r *trustedDevicesRepo) DeleteAllTrustedDevices(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM trusted_devices WHERE account_id = ?`, accountID)
	return err
}

func (r *trustedDevicesRepo) DeleteTrustedDevicesLastUsedBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM trusted_devices WHERE last_used_at < ?`, cutoff.UTC())
	return err
}

// scanner is the common subset of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrustedDevice(s scanner) (domain.TrustedDevice, error) {
	var (
		d          domain.TrustedDevice
		deviceType string
	)
	err := s.Scan(&d.ID, &d.AccountID, &d.DeviceID, &d.DeviceName, &deviceType, &d.TrustedAt, &d.LastUsedAt)
	if err != nil {
		return domain.TrustedDevice{}, mapNotFound(err)
	}
	d.DeviceType = domain.DeviceType(deviceType)
	return d, nil
}
