package store

import (
	"context"
	"errors"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement it. Sub-repositories keep concerns tidy and let transactional
// code reuse the same repo methods against a Tx-scoped store.
type Store interface {
	Accounts() Accounts
	BackupCodes() BackupCodes
	TrustedDevices() TrustedDevices

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Preferred over Tx for multi-step
	// mutations that must be atomic (commit secret + issue codes, disable).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccount returns the second-factor record for an account.
	GetAccount(ctx context.Context, id string) (domain.Account, error)

	// EnsureAccount inserts an empty record if none exists. Called lazily
	// the first time an authenticated user touches the service.
	EnsureAccount(ctx context.Context, id string) error

	// CommitSecret persists the shared secret after a successful enrollment
	// verification. The secret is immutable once committed; re-enrollment
	// goes through DisableFactor first.
	CommitSecret(ctx context.Context, accountID, secret string) error

	// UpdatePreferredMethod records the method chosen during enrollment.
	UpdatePreferredMethod(ctx context.Context, accountID string, method domain.Method) error

	// UpdatePasscodeHash sets the argon2 step-up passcode hash.
	UpdatePasscodeHash(ctx context.Context, accountID, hash string) error

	// EnableFactor marks the second factor active (sets enabled_at).
	EnableFactor(ctx context.Context, accountID string) error

	// DisableFactor clears enabled_at and the committed secret together.
	DisableFactor(ctx context.Context, accountID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores one recovery code for an account.
	CreateBackupCode(ctx context.Context, accountID, code string) error

	// ConsumeBackupCode atomically removes code from the active set.
	// Returns false, not an error, when the code is absent - including when
	// it was already consumed.
	ConsumeBackupCode(ctx context.Context, accountID, code string) (bool, error)

	// ListBackupCodes returns the active set in issuance order.
	ListBackupCodes(ctx context.Context, accountID string) ([]string, error)

	// DeleteAllBackupCodes removes the whole active set (regeneration,
	// disable).
	DeleteAllBackupCodes(ctx context.Context, accountID string) error

	// CountBackupCodes returns the number of unconsumed codes.
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}

type TrustedDevices interface {
	// UpsertTrustedDevice inserts the device or, when the (account,
	// device_id) pair already exists, refreshes device_name, device_type and
	// last_used_at. Trust is idempotent per device.
	UpsertTrustedDevice(ctx context.Context, d domain.TrustedDevice) error

	// GetTrustedDevice fetches one device by its stable client identifier.
	GetTrustedDevice(ctx context.Context, accountID, deviceID string) (domain.TrustedDevice, error)

	// ListTrustedDevices returns all devices for an account, most recently
	// trusted first.
	ListTrustedDevices(ctx context.Context, accountID string) ([]domain.TrustedDevice, error)

	// TouchTrustedDevice refreshes last_used_at after a successful bypass.
	TouchTrustedDevice(ctx context.Context, accountID, deviceID string, at time.Time) error

	// DeleteTrustedDevice revokes one device. No-op when absent.
	DeleteTrustedDevice(ctx context.Context, accountID, deviceID string) error

	// DeleteAllTrustedDevices revokes every device for an account.
	DeleteAllTrustedDevices(ctx context.Context, accountID string) error

	// DeleteTrustedDevicesLastUsedBefore removes devices whose last use
	// predates cutoff. Housekeeping for deployments with a trust TTL.
	DeleteTrustedDevicesLastUsedBefore(ctx context.Context, cutoff time.Time) error
}
