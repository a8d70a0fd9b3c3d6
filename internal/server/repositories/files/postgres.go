package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

const selectColumns = `id, name, filename, blob_id, size, mime_type, iv, owner_id, project_id,
	description, edited, tombstoned, created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new record and fills in CreatedAt from the database clock.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, name, filename, blob_id, size, mime_type, iv, owner_id, project_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.FileName, file.BlobID, file.Size, file.MimeType, file.IV,
		file.OwnerID, file.ProjectID, file.Description,
	).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns common.ErrNotFound when no record has the id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE id = $1`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// ListByProject returns the project's records, newest first.
func (r *PostgresRepository) ListByProject(ctx context.Context, projectID string) ([]*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE project_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, projectID)
}

// ListByOwner returns every record uploaded by ownerID, tombstoned ones too.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg string) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDescription replaces the description and flags the record as edited.
func (r *PostgresRepository) UpdateDescription(ctx context.Context, id string, description string) error {
	query := `UPDATE files SET description = $2, edited = TRUE WHERE id = $1`
	return r.execOne(ctx, "failed to update description", query, id, description)
}

// MarkTombstoned soft-deletes the record. The blob reference is kept.
func (r *PostgresRepository) MarkTombstoned(ctx context.Context, id string) error {
	query := `UPDATE files SET tombstoned = TRUE WHERE id = $1`
	return r.execOne(ctx, "failed to tombstone file", query, id)
}

// Delete removes the record; common.ErrNotFound if it was already gone.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	return r.execOne(ctx, "failed to delete file", query, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, what string, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// SizeByOwner sums record sizes per owner.
func (r *PostgresRepository) SizeByOwner(ctx context.Context) (map[string]int64, error) {
	query := `SELECT owner_id, COALESCE(SUM(size), 0) FROM files GROUP BY owner_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sum sizes: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var owner string
		var total int64
		if err := rows.Scan(&owner, &total); err != nil {
			return nil, err
		}
		result[owner] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	err := s.Scan(&f.ID, &f.Name, &f.FileName, &f.BlobID, &f.Size, &f.MimeType, &f.IV,
		&f.OwnerID, &f.ProjectID, &f.Description, &f.Edited, &f.Tombstoned, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
