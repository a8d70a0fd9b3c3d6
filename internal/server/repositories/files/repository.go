// Package files persists file metadata records.
package files

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	UpdateDescription(ctx context.Context, id string, description string) error
	MarkTombstoned(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// SizeByOwner sums record sizes per owner, tombstoned records included.
	SizeByOwner(ctx context.Context) (map[string]int64, error)
}
