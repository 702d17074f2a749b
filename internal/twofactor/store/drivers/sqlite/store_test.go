package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homevault/twofactor/internal/twofactor/domain"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/internal/twofactor/store/drivers/sqlite"
	"github.com/homevault/twofactor/pkg/idx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("get unknown account returns ErrNotFound", func(t *testing.T) {
		_, err := st.Accounts().GetAccount(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ensure is idempotent", func(t *testing.T) {
		require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-1"))
		require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-1"))

		acct, err := st.Accounts().GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		require.Equal(t, "acct-1", acct.ID)
		require.False(t, acct.Enabled())
		require.Nil(t, acct.TOTPSecret)
	})

	t.Run("commit secret then enable", func(t *testing.T) {
		require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-2"))
		require.NoError(t, st.Accounts().CommitSecret(ctx, "acct-2", "GEZDGNBVGY3TQOJQ"))
		require.NoError(t, st.Accounts().UpdatePreferredMethod(ctx, "acct-2", domain.MethodAuthenticator))
		require.NoError(t, st.Accounts().EnableFactor(ctx, "acct-2"))

		acct, err := st.Accounts().GetAccount(ctx, "acct-2")
		require.NoError(t, err)
		require.True(t, acct.Enabled())
		require.True(t, acct.HasSecret())
		require.Equal(t, "GEZDGNBVGY3TQOJQ", *acct.TOTPSecret)
		require.Equal(t, domain.MethodAuthenticator, acct.PreferredMethod)
	})

	t.Run("disable clears secret and enabled_at together", func(t *testing.T) {
		require.NoError(t, st.Accounts().DisableFactor(ctx, "acct-2"))

		acct, err := st.Accounts().GetAccount(ctx, "acct-2")
		require.NoError(t, err)
		require.False(t, acct.Enabled())
		require.False(t, acct.HasSecret())
	})

	t.Run("passcode hash round trips", func(t *testing.T) {
		require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-3"))
		require.NoError(t, st.Accounts().UpdatePasscodeHash(ctx, "acct-3", "$argon2id$..."))

		acct, err := st.Accounts().GetAccount(ctx, "acct-3")
		require.NoError(t, err)
		require.NotNil(t, acct.PasscodeHash)
		require.Equal(t, "$argon2id$...", *acct.PasscodeHash)
	})
}

func TestBackupCodes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-1"))
	codes := []string{"AAAA-1111", "BBBB-2222", "CCCC-3333"}
	for _, code := range codes {
		require.NoError(t, st.BackupCodes().CreateBackupCode(ctx, "acct-1", code))
	}

	t.Run("list preserves issuance order", func(t *testing.T) {
		got, err := st.BackupCodes().ListBackupCodes(ctx, "acct-1")
		require.NoError(t, err)
		require.Equal(t, codes, got)
	})

	t.Run("consume removes exactly one code", func(t *testing.T) {
		used, err := st.BackupCodes().ConsumeBackupCode(ctx, "acct-1", "BBBB-2222")
		require.NoError(t, err)
		require.True(t, used)

		count, err := st.BackupCodes().CountBackupCodes(ctx, "acct-1")
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("a consumed code never works twice", func(t *testing.T) {
		used, err := st.BackupCodes().ConsumeBackupCode(ctx, "acct-1", "BBBB-2222")
		require.NoError(t, err)
		require.False(t, used)
	})

	t.Run("unknown code reports false not error", func(t *testing.T) {
		used, err := st.BackupCodes().ConsumeBackupCode(ctx, "acct-1", "ZZZZ-9999")
		require.NoError(t, err)
		require.False(t, used)
	})

	t.Run("delete all clears the set", func(t *testing.T) {
		require.NoError(t, st.BackupCodes().DeleteAllBackupCodes(ctx, "acct-1"))
		count, err := st.BackupCodes().CountBackupCodes(ctx, "acct-1")
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestTrustedDevices(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-1"))

	device := func(deviceID string, lastUsed time.Time) domain.TrustedDevice {
		return domain.TrustedDevice{
			ID:         idx.New().String(),
			AccountID:  "acct-1",
			DeviceID:   deviceID,
			DeviceName: "Kitchen iPad",
			DeviceType: domain.DeviceIPad,
			TrustedAt:  lastUsed,
			LastUsedAt: lastUsed,
		}
	}

	t.Run("upsert is idempotent per device id", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, st.TrustedDevices().UpsertTrustedDevice(ctx, device("dev-1", now)))

		later := device("dev-1", now.Add(time.Hour))
		later.DeviceName = "Living Room iPad"
		require.NoError(t, st.TrustedDevices().UpsertTrustedDevice(ctx, later))

		all, err := st.TrustedDevices().ListTrustedDevices(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "Living Room iPad", all[0].DeviceName)
		// Re-trusting refreshes usage but keeps the original trust time.
		require.WithinDuration(t, now, all[0].TrustedAt, time.Second)
		require.WithinDuration(t, now.Add(time.Hour), all[0].LastUsedAt, time.Second)
	})

	t.Run("get unknown device returns ErrNotFound", func(t *testing.T) {
		_, err := st.TrustedDevices().GetTrustedDevice(ctx, "acct-1", "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("touch refreshes last used", func(t *testing.T) {
		at := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
		require.NoError(t, st.TrustedDevices().TouchTrustedDevice(ctx, "acct-1", "dev-1", at))

		d, err := st.TrustedDevices().GetTrustedDevice(ctx, "acct-1", "dev-1")
		require.NoError(t, err)
		require.WithinDuration(t, at, d.LastUsedAt, time.Second)
	})

	t.Run("revoking an unknown device is a no-op", func(t *testing.T) {
		require.NoError(t, st.TrustedDevices().DeleteTrustedDevice(ctx, "acct-1", "missing"))
	})

	t.Run("stale devices are removed by cutoff", func(t *testing.T) {
		old := time.Now().UTC().Add(-90 * 24 * time.Hour)
		require.NoError(t, st.TrustedDevices().UpsertTrustedDevice(ctx, device("dev-old", old)))

		cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
		require.NoError(t, st.TrustedDevices().DeleteTrustedDevicesLastUsedBefore(ctx, cutoff))

		_, err := st.TrustedDevices().GetTrustedDevice(ctx, "acct-1", "dev-old")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.TrustedDevices().GetTrustedDevice(ctx, "acct-1", "dev-1")
		require.NoError(t, err)
	})
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Accounts().EnsureAccount(ctx, "acct-1"))

	t.Run("commits on nil", func(t *testing.T) {
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Accounts().CommitSecret(ctx, "acct-1", "SECRET"); err != nil {
				return err
			}
			return tx.BackupCodes().CreateBackupCode(ctx, "acct-1", "AAAA-1111")
		})
		require.NoError(t, err)

		acct, err := st.Accounts().GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		require.True(t, acct.HasSecret())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.BackupCodes().CreateBackupCode(ctx, "acct-1", "BBBB-2222"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		count, err := st.BackupCodes().CountBackupCodes(ctx, "acct-1")
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}
