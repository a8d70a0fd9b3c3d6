package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/blobstore"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	auditrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/audit"
	filesrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/files"
	quotarepo "github.com/dmitrijs2005/filevault/internal/server/repositories/quota"
	usersrepo "github.com/dmitrijs2005/filevault/internal/server/repositories/users"
)

const mib = int64(1 << 20)

var errBoom = errors.New("boom")

// --- directory ---

type fakeUsersRepo struct {
	users    map[string]*models.User
	projects map[string]bool
	members  map[string]bool // project + "/" + user
	err      error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.UserName == login {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeUsersRepo) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.projects[projectID], nil
}

func (f *fakeUsersRepo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.members[projectID+"/"+userID], nil
}

// --- files ---

type fakeFilesRepo struct {
	mu        sync.Mutex
	files     map[string]*models.File
	createErr error
	deleteErr map[string]error
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	file.CreatedAt = time.Now().UTC()
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFilesRepo) list(match func(*models.File) bool) []*models.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.File
	for _, file := range f.files {
		if match(file) {
			cp := *file
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeFilesRepo) ListByProject(ctx context.Context, projectID string) ([]*models.File, error) {
	return f.list(func(x *models.File) bool { return x.ProjectID == projectID }), nil
}

func (f *fakeFilesRepo) ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error) {
	return f.list(func(x *models.File) bool { return x.OwnerID == ownerID }), nil
}

func (f *fakeFilesRepo) UpdateDescription(ctx context.Context, id, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return common.ErrNotFound
	}
	file.Description = description
	file.Edited = true
	return nil
}

func (f *fakeFilesRepo) MarkTombstoned(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return common.ErrNotFound
	}
	file.Tombstoned = true
	return nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := f.files[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.files, id)
	return nil
}

func (f *fakeFilesRepo) SizeByOwner(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int64{}
	for _, file := range f.files {
		out[file.OwnerID] += file.Size
	}
	return out, nil
}

// --- quota ---

type fakeQuotaRepo struct {
	mu      sync.Mutex
	used    map[string]int64
	reserve func(owner string, n int64) error
	setErr  error
	sets    int
}

func (f *fakeQuotaRepo) Get(ctx context.Context, owner string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[owner], nil
}

func (f *fakeQuotaRepo) Reserve(ctx context.Context, owner string, n, ceiling int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserve != nil {
		if err := f.reserve(owner, n); err != nil {
			return 0, err
		}
	}
	if f.used[owner]+n > ceiling {
		return 0, common.ErrQuotaExceeded
	}
	f.used[owner] += n
	return f.used[owner], nil
}

func (f *fakeQuotaRepo) Release(ctx context.Context, owner string, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[owner] = max(f.used[owner]-n, 0)
	return nil
}

func (f *fakeQuotaRepo) Reset(ctx context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[owner] = 0
	return nil
}

func (f *fakeQuotaRepo) Set(ctx context.Context, owner string, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	f.used[owner] = n
	return nil
}

func (f *fakeQuotaRepo) All(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.used))
	for k, v := range f.used {
		out[k] = v
	}
	return out, nil
}

func (f *fakeQuotaRepo) value(owner string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[owner]
}

// --- audit ---

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []models.AuditEvent
	err    error
}

func (f *fakeAuditRepo) Record(ctx context.Context, ev models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Action
	}
	return out
}

// --- manager ---

type fakeRepoManager struct {
	users *fakeUsersRepo
	files *fakeFilesRepo
	quota *fakeQuotaRepo
	audit *fakeAuditRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.users }
func (m *fakeRepoManager) Files(db dbx.DBTX) filesrepo.Repository       { return m.files }
func (m *fakeRepoManager) Quota(db dbx.DBTX) quotarepo.Repository       { return m.quota }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditrepo.Repository       { return m.audit }

// --- blob store wrappers ---

type flakyStore struct {
	blobstore.Store
	putErr    error
	getErr    error
	deleteErr error

	mu      sync.Mutex
	deleted []string
}

func (s *flakyStore) Put(ctx context.Context, r io.Reader) (string, error) {
	if s.putErr != nil {
		_, _ = io.Copy(io.Discard, r)
		return "", s.putErr
	}
	return s.Store.Put(ctx, r)
}

func (s *flakyStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, id)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, id)
	s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Store.Delete(ctx, id)
}

// --- environment ---

const (
	ownerID    = "u-owner"
	memberID   = "u-member"
	adminID    = "u-admin"
	outsiderID = "u-outsider"
	projectID  = "p-1"
	password   = "correct horse"
)

type testEnv struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	repos  *fakeRepoManager
	mem    *blobstore.MemoryStore
	blobs  *flakyStore
	cipher *cryptox.CipherContext
	tokens *auth.CapabilityIssuer
	dir    *DirectoryService
	svc    *FileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}

	repos := &fakeRepoManager{
		users: &fakeUsersRepo{
			users: map[string]*models.User{
				ownerID:    {ID: ownerID, UserName: "owner", PasswordHash: hash},
				memberID:   {ID: memberID, UserName: "member", PasswordHash: hash},
				adminID:    {ID: adminID, UserName: "admin", PasswordHash: hash, IsAdmin: true},
				outsiderID: {ID: outsiderID, UserName: "outsider", PasswordHash: hash},
			},
			projects: map[string]bool{projectID: true, "p-empty": true},
			members:  map[string]bool{projectID + "/" + ownerID: true, projectID + "/" + memberID: true},
		},
		files: &fakeFilesRepo{files: map[string]*models.File{}, deleteErr: map[string]error{}},
		quota: &fakeQuotaRepo{used: map[string]int64{}},
		audit: &fakeAuditRepo{},
	}

	cipher, err := cryptox.NewCipherContext("file-secret")
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := auth.NewCapabilityIssuer([]byte("token-secret"), time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	mem := blobstore.NewMemoryStore()
	blobs := &flakyStore{Store: mem}
	dir := NewDirectoryService(db, repos, []byte("token-secret"), time.Hour)
	cfg := &config.Config{QuotaCeiling: 100 * mib}

	return &testEnv{
		db: db, mock: mock, repos: repos, mem: mem, blobs: blobs, cipher: cipher, tokens: tokens, dir: dir,
		svc: NewFileService(db, repos, dir, blobs, cipher, tokens, cfg, logging.Nop{}),
	}
}

// expectTx queues one committed transaction.
func (e *testEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *testEnv) upload(t *testing.T, owner string, body []byte) *models.File {
	t.Helper()
	e.expectTx()
	f, err := e.svc.Upload(context.Background(), UploadRequest{
		OwnerID: owner, ProjectID: projectID, FileName: "doc.txt", MimeType: "text/plain",
		DeclaredSize: int64(len(body)), Body: bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return f
}

// zeros is an endless stream of zero bytes.
type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
