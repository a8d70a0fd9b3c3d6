// Package users reads the user and project directory.
package users

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	IsMember(ctx context.Context, projectID string, userID string) (bool, error)
}
