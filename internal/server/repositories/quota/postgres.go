package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT bytes_used FROM quota_usage WHERE owner_id = $1`

	var used int64
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to select usage: %w", err)
	}
	return used, nil
}

// Reserve performs the ceiling check and the increment in one upsert. The
// conflict branch row-locks the ledger entry, serializing concurrent callers.
func (r *PostgresRepository) Reserve(ctx context.Context, ownerID string, n int64, ceiling int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative reservation", common.ErrValidation)
	}

	query := `
		INSERT INTO quota_usage (owner_id, bytes_used)
		SELECT $1::text, $2::bigint WHERE $2::bigint <= $3::bigint
		ON CONFLICT (owner_id) DO UPDATE
			SET bytes_used = quota_usage.bytes_used + EXCLUDED.bytes_used, updated_at = now()
			WHERE quota_usage.bytes_used + EXCLUDED.bytes_used <= $3::bigint
		RETURNING bytes_used
	`

	var used int64
	err := r.db.QueryRowContext(ctx, query, ownerID, n, ceiling).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrQuotaExceeded
		}
		return 0, fmt.Errorf("failed to reserve quota: %w", err)
	}
	return used, nil
}

func (r *PostgresRepository) Release(ctx context.Context, ownerID string, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative release", common.ErrValidation)
	}
	query := `UPDATE quota_usage SET bytes_used = GREATEST(bytes_used - $2, 0), updated_at = now() WHERE owner_id = $1`
	if _, err := r.db.ExecContext(ctx, query, ownerID, n); err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Reset(ctx context.Context, ownerID string) error {
	query := `UPDATE quota_usage SET bytes_used = 0, updated_at = now() WHERE owner_id = $1`
	if _, err := r.db.ExecContext(ctx, query, ownerID); err != nil {
		return fmt.Errorf("failed to reset quota: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Set(ctx context.Context, ownerID string, n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative usage", common.ErrValidation)
	}
	query := `
		INSERT INTO quota_usage (owner_id, bytes_used) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET bytes_used = EXCLUDED.bytes_used, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, ownerID, n); err != nil {
		return fmt.Errorf("failed to set quota: %w", err)
	}
	return nil
}

func (r *PostgresRepository) All(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner_id, bytes_used FROM quota_usage`)
	if err != nil {
		return nil, fmt.Errorf("failed to select usage: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var owner string
		var used int64
		if err := rows.Scan(&owner, &used); err != nil {
			return nil, err
		}
		result[owner] = used
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
