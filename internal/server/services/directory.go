package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DirectoryService answers who a user is and what they may touch. Users and
// projects are managed elsewhere; this service only reads them.
type DirectoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
	accessTTL   time.Duration
}

func NewDirectoryService(db *sql.DB, m repomanager.RepositoryManager, jwtSecret []byte, accessTTL time.Duration) *DirectoryService {
	return &DirectoryService{
		db:          db,
		repomanager: m,
		jwtSecret:   jwtSecret,
		accessTTL:   accessTTL,
	}
}

// User returns the directory entry; an unknown id is common.ErrForbidden
// because a token for a vanished user grants nothing.
func (s *DirectoryService) User(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrForbidden
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return u, nil
}

func (s *DirectoryService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// CanAccessProject reports whether user may read and write in projectID:
// administrators everywhere, others only where they are members. A missing
// project is common.ErrNotFound.
func (s *DirectoryService) CanAccessProject(ctx context.Context, user *models.User, projectID string) error {
	repo := s.repomanager.Users(s.db)

	ok, err := repo.ProjectExists(ctx, projectID)
	if err != nil {
		return fmt.Errorf("error checking project: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: project %s", common.ErrNotFound, projectID)
	}
	if user.IsAdmin {
		return nil
	}

	member, err := repo.IsMember(ctx, projectID, user.ID)
	if err != nil {
		return fmt.Errorf("error checking membership: %w", err)
	}
	if !member {
		return common.ErrForbidden
	}
	return nil
}

// VerifyPassword re-checks a user's password; a mismatch is
// common.ErrUnauthorized.
func (s *DirectoryService) VerifyPassword(ctx context.Context, userID string, password string) error {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrUnauthorized
		}
		return fmt.Errorf("error loading user: %w", err)
	}
	if !checkPassword(u.PasswordHash, password) {
		return common.ErrUnauthorized
	}
	return nil
}

// Login verifies credentials and mints an access token. Unknown users and
// wrong passwords are indistinguishable.
func (s *DirectoryService) Login(ctx context.Context, userName string, password string) (string, error) {
	u, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// burn the same time as a real comparison
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", common.ErrUnauthorized
		}
		return "", common.ErrInternal
	}
	if !checkPassword(u.PasswordHash, password) {
		return "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(u.ID, s.jwtSecret, s.accessTTL)
	if err != nil {
		return "", common.ErrInternal
	}
	return token, nil
}

// CreateUser seeds a directory entry. The account service normally owns
// users; this exists for bootstrap tooling.
func (s *DirectoryService) CreateUser(ctx context.Context, userName, password string, isAdmin bool) (*models.User, error) {
	if userName == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &models.User{ID: uuid.NewString(), UserName: userName, PasswordHash: hash, IsAdmin: isAdmin}
	return s.repomanager.Users(s.db).Create(ctx, u)
}

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("filevault"), bcrypt.DefaultCost)

func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
