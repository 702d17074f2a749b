package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, accountID, code string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_codes (account_id, code, created_at) VALUES (?, ?, ?)`,
		accountID, code, time.Now().UTC())
	return err
}

// ConsumeBackupCode deletes the code in a single statement so that two
// concurrent attempts cannot both succeed.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, accountID, code string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM backup_codes WHERE account_id = ? AND code = ?`,
		accountID, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) ListBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT code FROM backup_codes WHERE account_id = ? ORDER BY rowid`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}
