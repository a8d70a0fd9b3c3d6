// Package services contains server-side business logic: the directory
// lookups, the encrypted upload, delivery and deletion pipelines, and the
// quota reconciliation job.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/blobstore"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxDescriptionLen = 1024

// UploadRequest describes one incoming file. DeclaredSize is the length the
// client announced, or -1 when unknown.
type UploadRequest struct {
	OwnerID      string
	ProjectID    string
	Name         string
	FileName     string
	MimeType     string
	Description  string
	DeclaredSize int64
	Body         io.Reader
}

// PurgeResult counts the outcome of a bulk delete.
type PurgeResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// FileService runs the file pipelines. It is the only place where the
// cipher, the blob store and the quota ledger meet.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	directory   *DirectoryService
	blobs       blobstore.Store
	cipher      *cryptox.CipherContext
	tokens      *auth.CapabilityIssuer
	ceiling     int64
	logger      logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, directory *DirectoryService, blobs blobstore.Store,
	cipher *cryptox.CipherContext, tokens *auth.CapabilityIssuer, cfg *config.Config, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		directory:   directory,
		blobs:       blobs,
		cipher:      cipher,
		tokens:      tokens,
		ceiling:     cfg.QuotaCeiling,
		logger:      logger.With("module", "files"),
		now:         time.Now,
	}
}

// Upload authorizes, prechecks quota, encrypts the body straight into the
// blob store and then commits the record together with the ledger debit.
// Anything failing after the blob was written deletes the blob again.
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (*models.File, error) {
	fileName := cleanFileName(req.FileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name is required", common.ErrValidation)
	}
	if len(req.Description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description too long", common.ErrValidation)
	}

	user, err := s.directory.User(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.directory.CanAccessProject(ctx, user, req.ProjectID); err != nil {
		return nil, err
	}

	used, err := s.repomanager.Quota(s.db).Get(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("error reading quota: %w", err)
	}
	declared := max(req.DeclaredSize, 0)
	if used+declared > s.ceiling {
		return nil, common.ErrQuotaExceeded
	}

	// The meter stops the stream as soon as the body outgrows what is left,
	// whatever size was declared.
	meter := &meteredReader{r: req.Body, limit: s.ceiling - used}
	iv, ciphertext := s.cipher.NewEncryptor(meter)

	blobID, err := s.blobs.Put(ctx, ciphertext)
	if err != nil {
		if meter.exceeded {
			return nil, common.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("%w: storing blob: %w", common.ErrStream, err)
	}

	if req.DeclaredSize >= 0 && meter.n != req.DeclaredSize {
		s.logger.Warn(ctx, "upload size differs from declared size",
			"owner_id", req.OwnerID, "declared", req.DeclaredSize, "actual", meter.n)
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = common.DefaultMimeType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fileName
	}

	file := &models.File{
		ID:          uuid.NewString(),
		Name:        name,
		FileName:    fileName,
		BlobID:      blobID,
		Size:        meter.n,
		MimeType:    mimeType,
		IV:          cryptox.EncodeIV(iv),
		OwnerID:     req.OwnerID,
		ProjectID:   req.ProjectID,
		Description: req.Description,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			return fmt.Errorf("error creating file record: %w", err)
		}
		if _, err := s.repomanager.Quota(tx).Reserve(ctx, req.OwnerID, file.Size, s.ceiling); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.discardBlob(ctx, blobID)
		return nil, err
	}

	s.audit(ctx, models.AuditEvent{
		ActorID: req.OwnerID, Action: models.AuditUpload, FileID: file.ID, ProjectID: file.ProjectID, Size: file.Size,
	})
	s.logger.Info(ctx, "file uploaded", "file_id", file.ID, "owner_id", file.OwnerID, "size", file.Size)
	return file, nil
}

// discardBlob is the compensation step for uploads that did not commit.
func (s *FileService) discardBlob(ctx context.Context, blobID string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), blobID); err != nil {
		s.logger.Error(ctx, "failed to discard uncommitted blob", "blob_id", blobID, "error", err)
	}
}

// IssueDownloadToken mints a capability for a file the requester may read.
func (s *FileService) IssueDownloadToken(ctx context.Context, fileID, requesterID string) (string, time.Time, error) {
	user, file, err := s.loadForRead(ctx, fileID, requesterID)
	if err != nil {
		return "", time.Time{}, err
	}
	if file.Tombstoned && !user.IsAdmin {
		return "", time.Time{}, common.ErrForbidden
	}

	token, exp, err := s.tokens.Issue(file.ID, user.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return token, exp, nil
}

// OpenDownload validates a capability and prepares the decrypted stream.
// Everything that can fail before the first byte is sent fails here.
func (s *FileService) OpenDownload(ctx context.Context, token string, preview bool) (*Delivery, error) {
	grant, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	file, err := s.getFile(ctx, grant.FileID)
	if err != nil {
		return nil, err
	}
	if file.Tombstoned {
		admin, err := s.directory.IsAdmin(ctx, grant.RequesterID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, common.ErrForbidden
		}
	}

	iv, err := cryptox.DecodeIV(file.IV)
	if err != nil {
		s.logger.Error(ctx, "stored iv is unusable", "file_id", file.ID, "error", err)
		return nil, fmt.Errorf("%w: unusable iv", common.ErrStream)
	}

	blob, err := s.blobs.Get(ctx, file.BlobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn(ctx, "file record exists but blob is gone", "file_id", file.ID, "blob_id", file.BlobID)
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: opening blob: %w", common.ErrStream, err)
	}

	plain, err := s.cipher.NewDecryptor(iv, blob)
	if err != nil {
		blob.Close()
		return nil, err
	}

	d := NewDelivery(ctx, file, preview, plain, blob, s.logger)
	if err := d.prime(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Delete applies the owner/admin policy: owners hard delete, administrators
// deleting someone else's file only tombstone it.
func (s *FileService) Delete(ctx context.Context, fileID, actorID string) error {
	user, err := s.directory.User(ctx, actorID)
	if err != nil {
		return err
	}
	file, err := s.getFile(ctx, fileID)
	if err != nil {
		return err
	}

	switch {
	case file.OwnerID == user.ID && (!file.Tombstoned || user.IsAdmin):
		if err := s.hardDelete(ctx, file); err != nil {
			return err
		}
		s.audit(ctx, models.AuditEvent{
			ActorID: user.ID, Action: models.AuditDelete, FileID: file.ID, ProjectID: file.ProjectID, Size: file.Size,
		})
		return nil

	case user.IsAdmin:
		if !file.Tombstoned {
			if err := s.repomanager.Files(s.db).MarkTombstoned(ctx, file.ID); err != nil {
				return fmt.Errorf("error tombstoning file: %w", err)
			}
		}
		s.audit(ctx, models.AuditEvent{
			ActorID: user.ID, Action: models.AuditTombstone, FileID: file.ID, ProjectID: file.ProjectID, Size: file.Size,
		})
		s.logger.Info(ctx, "file tombstoned", "file_id", file.ID, "admin_id", user.ID)
		return nil

	default:
		return common.ErrForbidden
	}
}

// hardDelete removes the blob first; the record and the quota go together
// afterwards so a retry after a failed blob delete finds the record intact.
func (s *FileService) hardDelete(ctx context.Context, file *models.File) error {
	if err := s.blobs.Delete(ctx, file.BlobID); err != nil {
		return fmt.Errorf("error deleting blob: %w", err)
	}
	return s.removeRecord(ctx, file)
}

func (s *FileService) removeRecord(ctx context.Context, file *models.File) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Files(tx).Delete(ctx, file.ID); err != nil {
			return err
		}
		if err := s.repomanager.Quota(tx).Release(ctx, file.OwnerID, file.Size); err != nil {
			return err
		}
		return nil
	})
}

// Purge hard deletes every file the owner has, after re-checking their
// password. Failures on single files are logged and counted; the owner's
// usage is zero afterwards either way.
func (s *FileService) Purge(ctx context.Context, ownerID, password string) (*PurgeResult, error) {
	if err := s.directory.VerifyPassword(ctx, ownerID, password); err != nil {
		return nil, err
	}

	files, err := s.repomanager.Files(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}

	res := &PurgeResult{}
	for _, f := range files {
		if err := s.blobs.Delete(ctx, f.BlobID); err != nil {
			s.logger.Error(ctx, "purge: blob delete failed, blob orphaned", "file_id", f.ID, "blob_id", f.BlobID, "error", err)
		}
		if err := s.repomanager.Files(s.db).Delete(ctx, f.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			s.logger.Error(ctx, "purge: record delete failed", "file_id", f.ID, "error", err)
			res.Failed++
			continue
		}
		res.Deleted++
		s.audit(ctx, models.AuditEvent{
			ActorID: ownerID, Action: models.AuditPurge, FileID: f.ID, ProjectID: f.ProjectID, Size: f.Size,
		})
	}

	if err := s.repomanager.Quota(s.db).Reset(ctx, ownerID); err != nil {
		return res, fmt.Errorf("error resetting quota: %w", err)
	}
	s.logger.Info(ctx, "purge finished", "owner_id", ownerID, "deleted", res.Deleted, "failed", res.Failed)
	return res, nil
}

// UpdateDescription lets the owner or an administrator edit the description.
func (s *FileService) UpdateDescription(ctx context.Context, fileID, actorID, description string) (*models.File, error) {
	if len(description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description too long", common.ErrValidation)
	}
	user, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	file, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin && (file.OwnerID != user.ID || file.Tombstoned) {
		return nil, common.ErrForbidden
	}

	if err := s.repomanager.Files(s.db).UpdateDescription(ctx, file.ID, description); err != nil {
		return nil, fmt.Errorf("error updating description: %w", err)
	}
	file.Description = description
	file.Edited = true

	s.audit(ctx, models.AuditEvent{
		ActorID: user.ID, Action: models.AuditDescribe, FileID: file.ID, ProjectID: file.ProjectID,
	})
	return file, nil
}

// Get returns one record the actor may see.
func (s *FileService) Get(ctx context.Context, fileID, actorID string) (*models.File, error) {
	_, file, err := s.loadForRead(ctx, fileID, actorID)
	return file, err
}

// ListProject lists a project's files. Tombstoned records are shown only to
// administrators and to their owner.
func (s *FileService) ListProject(ctx context.Context, projectID, actorID string) ([]*models.File, error) {
	user, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.directory.CanAccessProject(ctx, user, projectID); err != nil {
		return nil, err
	}

	files, err := s.repomanager.Files(s.db).ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}

	visible := make([]*models.File, 0, len(files))
	for _, f := range files {
		if visibleTo(user, f) {
			visible = append(visible, f)
		}
	}
	return visible, nil
}

// Usage reports the owner's ledger entry.
func (s *FileService) Usage(ctx context.Context, ownerID string) (*models.QuotaUsage, error) {
	used, err := s.repomanager.Quota(s.db).Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error reading quota: %w", err)
	}
	return &models.QuotaUsage{OwnerID: ownerID, BytesUsed: used, Ceiling: s.ceiling}, nil
}

func (s *FileService) loadForRead(ctx context.Context, fileID, actorID string) (*models.User, *models.File, error) {
	user, err := s.directory.User(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.directory.CanAccessProject(ctx, user, file.ProjectID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrForbidden
		}
		return nil, nil, err
	}
	if !visibleTo(user, file) {
		return nil, nil, common.ErrNotFound
	}
	return user, file, nil
}

// getFile maps malformed ids to common.ErrNotFound before touching the db.
func (s *FileService) getFile(ctx context.Context, fileID string) (*models.File, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, common.ErrNotFound
	}
	return s.repomanager.Files(s.db).GetByID(ctx, fileID)
}

func (s *FileService) audit(ctx context.Context, ev models.AuditEvent) {
	ev.At = s.now().UTC()
	if err := s.repomanager.Audit(s.db).Record(ctx, ev); err != nil {
		s.logger.Error(ctx, "audit event lost", "action", ev.Action, "file_id", ev.FileID, "error", err)
	}
}

func visibleTo(user *models.User, f *models.File) bool {
	return !f.Tombstoned || user.IsAdmin || f.OwnerID == user.ID
}

// cleanFileName keeps only the last path element of a client supplied name.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// meteredReader counts bytes and fails once more than limit were read.
type meteredReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.n += int64(n)
	if m.n > m.limit {
		m.exceeded = true
		return n, common.ErrQuotaExceeded
	}
	return n, err
}
