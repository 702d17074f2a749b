package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/homevault/twofactor/internal/twofactor/domain"
)

type accountsRepo struct {
	q querier
}

func (r *accountsRepo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, preferred_method, totp_secret, passcode_hash, enabled_at, created_at, updated_at
		FROM accounts WHERE id = ?`, id)

	var (
		a         domain.Account
		method    string
		secret    sql.NullString
		passcode  sql.NullString
		enabledAt sql.NullTime
	)
	err := row.Scan(&a.ID, &method, &secret, &passcode, &enabledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}

	a.PreferredMethod = domain.Method(method)
	if secret.Valid {
		a.TOTPSecret = &secret.String
	}
	if passcode.Valid {
		a.PasscodeHash = &passcode.String
	}
	if enabledAt.Valid {
		t := enabledAt.Time
		a.EnabledAt = &t
	}
	return a, nil
}

func (r *accountsRepo) EnsureAccount(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, preferred_method, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, string(domain.MethodAuthenticator), now, now)
	return err
}

func (r *accountsRepo) CommitSecret(ctx context.Context, accountID, secret string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), accountID)
	return err
}

func (r *accountsRepo) UpdatePreferredMethod(ctx context.Context, accountID string, method domain.Method) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET preferred_method = ?, updated_at = ? WHERE id = ?`,
		string(method), time.Now().UTC(), accountID)
	return err
}

func (r *accountsRepo) UpdatePasscodeHash(ctx context.Context, accountID, hash string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET passcode_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), accountID)
	return err
}

func (r *accountsRepo) EnableFactor(ctx context.Context, accountID string) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET enabled_at = ?, updated_at = ? WHERE id = ?`,
		now, now, accountID)
	return err
}

func (r *accountsRepo) DisableFactor(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET enabled_at = NULL, totp_secret = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), accountID)
	return err
}
