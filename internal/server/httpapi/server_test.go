package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("http-test-secret")

type fakeFiles struct {
	lastUpload services.UploadRequest
	uploaded   []byte
	uploadErr  error

	files      map[string]*models.File
	content    map[string]string
	deleted    []string
	purgeErr   error
	openErr    error
	tokenCalls int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		files: map[string]*models.File{
			"f-1": {ID: "f-1", Name: "report", FileName: "report final.pdf", MimeType: "application/pdf", Size: 11, OwnerID: "u-1", ProjectID: "p-1"},
		},
		content: map[string]string{"f-1": "hello world"},
	}
}

func (f *fakeFiles) Upload(ctx context.Context, req services.UploadRequest) (*models.File, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.lastUpload = req
	f.uploaded = data
	return &models.File{ID: "f-new", Name: req.Name, FileName: req.FileName, MimeType: req.MimeType,
		Size: int64(len(data)), OwnerID: req.OwnerID, ProjectID: req.ProjectID, Description: req.Description}, nil
}

func (f *fakeFiles) IssueDownloadToken(ctx context.Context, fileID, requesterID string) (string, time.Time, error) {
	f.tokenCalls++
	if _, ok := f.files[fileID]; !ok {
		return "", time.Time{}, common.ErrNotFound
	}
	return "tok:" + fileID, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), nil
}

func (f *fakeFiles) OpenDownload(ctx context.Context, token string, preview bool) (*services.Delivery, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	id := strings.TrimPrefix(token, "tok:")
	file, ok := f.files[id]
	if !ok {
		return nil, common.ErrUnauthorized
	}
	body := io.NopCloser(strings.NewReader(f.content[id]))
	return services.NewDelivery(ctx, file, preview, body, body, logging.Nop{}), nil
}

func (f *fakeFiles) Delete(ctx context.Context, fileID, actorID string) error {
	if _, ok := f.files[fileID]; !ok {
		return common.ErrNotFound
	}
	if f.files[fileID].OwnerID != actorID {
		return common.ErrForbidden
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeFiles) Purge(ctx context.Context, ownerID, password string) (*services.PurgeResult, error) {
	if f.purgeErr != nil {
		return nil, f.purgeErr
	}
	if password != "pw" {
		return nil, common.ErrUnauthorized
	}
	return &services.PurgeResult{Deleted: 3, Failed: 1}, nil
}

func (f *fakeFiles) UpdateDescription(ctx context.Context, fileID, actorID, description string) (*models.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	updated := *file
	updated.Description = description
	updated.Edited = true
	return &updated, nil
}

func (f *fakeFiles) Get(ctx context.Context, fileID, actorID string) (*models.File, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return file, nil
}

func (f *fakeFiles) ListProject(ctx context.Context, projectID, actorID string) ([]*models.File, error) {
	if projectID != "p-1" {
		return nil, fmt.Errorf("project %q: %w", projectID, common.ErrNotFound)
	}
	return []*models.File{f.files["f-1"]}, nil
}

func (f *fakeFiles) Usage(ctx context.Context, ownerID string) (*models.QuotaUsage, error) {
	return &models.QuotaUsage{OwnerID: ownerID, BytesUsed: 40, Ceiling: 100}, nil
}

type fakeAuth struct{}

func (fakeAuth) Login(ctx context.Context, userName, password string) (string, error) {
	if userName == "alice" && password == "pw" {
		return "access-token", nil
	}
	return "", common.ErrUnauthorized
}

func newTestServer(t *testing.T) (*Server, *fakeFiles) {
	t.Helper()
	files := newFakeFiles()
	return NewServer("127.0.0.1:0", files, fakeAuth{}, testSecret, logging.Nop{}), files
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeError(t *testing.T, body []byte) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := doRequest(t, s, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"token":"access-token"}`, string(body))

	req = httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body = doRequest(t, s, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeUnauthorized, decodeError(t, body).Code)
}

func TestAuth_Required(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, body := doRequest(t, s, req)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, codeUnauthorized, decodeError(t, body).Code)
		})
	}
}

func TestUpload(t *testing.T) {
	s, files := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/p-1/files?name=Notes&description=weekly", strings.NewReader("some notes"))
	req.Header.Set("Authorization", bearer(t, "u-1"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(common.FileNameHeaderName, "notes.txt")

	resp, body := doRequest(t, s, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var got models.File
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "f-new", got.ID)
	assert.Equal(t, int64(10), got.Size)

	assert.Equal(t, "some notes", string(files.uploaded))
	assert.Equal(t, "u-1", files.lastUpload.OwnerID)
	assert.Equal(t, "p-1", files.lastUpload.ProjectID)
	assert.Equal(t, "Notes", files.lastUpload.Name)
	assert.Equal(t, "notes.txt", files.lastUpload.FileName)
	assert.Equal(t, "text/plain", files.lastUpload.MimeType)
	assert.Equal(t, "weekly", files.lastUpload.Description)
	assert.Equal(t, int64(10), files.lastUpload.DeclaredSize)
}

func TestUpload_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"quota", common.ErrQuotaExceeded, http.StatusInsufficientStorage, codeQuotaExceeded},
		{"forbidden", fmt.Errorf("wrapped: %w", common.ErrForbidden), http.StatusForbidden, codeForbidden},
		{"missing project", common.ErrNotFound, http.StatusNotFound, codeNotFound},
		{"validation", common.ErrValidation, http.StatusBadRequest, codeValidation},
		{"stream", fmt.Errorf("%w: backend down", common.ErrStream), http.StatusInternalServerError, codeStream},
		{"other", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, files := newTestServer(t)
			files.uploadErr = tt.err

			req := httptest.NewRequest(http.MethodPost, "/api/projects/p-1/files", strings.NewReader("x"))
			req.Header.Set("Authorization", bearer(t, "u-1"))
			req.Header.Set(common.FileNameHeaderName, "x.bin")

			resp, body := doRequest(t, s, req)
			assert.Equal(t, tt.status, resp.StatusCode)
			e := decodeError(t, body)
			assert.Equal(t, tt.code, e.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, e.Error, "boom")
			}
		})
	}
}

func TestListGetDescribeDelete(t *testing.T) {
	s, files := newTestServer(t)
	authz := bearer(t, "u-1")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/p-1/files", nil)
	req.Header.Set("Authorization", authz)
	resp, body := doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.File
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "f-1", list[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/projects/p-x/files", nil)
	req.Header.Set("Authorization", authz)
	resp, _ = doRequest(t, s, req)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/files/f-1", nil)
	req.Header.Set("Authorization", authz)
	resp, body = doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"filename":"report final.pdf"`)
	assert.NotContains(t, string(body), "blob")

	req = httptest.NewRequest(http.MethodPatch, "/api/files/f-1", strings.NewReader(`{"description":"v2"}`))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "application/json")
	resp, body = doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"description":"v2"`)
	assert.Contains(t, string(body), `"edited":true`)

	req = httptest.NewRequest(http.MethodDelete, "/api/files/f-1", nil)
	req.Header.Set("Authorization", bearer(t, "u-2"))
	resp, _ = doRequest(t, s, req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/api/files/f-1", nil)
	req.Header.Set("Authorization", authz)
	resp, _ = doRequest(t, s, req)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"f-1"}, files.deleted)
}

func TestTokenAndDownload(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/files/f-1/token", nil)
	req.Header.Set("Authorization", bearer(t, "u-1"))
	resp, body := doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr tokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	assert.Equal(t, "tok:f-1", tr.Token)
	assert.False(t, tr.ExpiresAt.IsZero())

	resp, body = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/download?token="+tr.Token, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report final.pdf"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp, _ = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/download?preview=true&token="+tr.Token, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))
}

func TestDownload_Errors(t *testing.T) {
	s, files := newTestServer(t)

	resp, body := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/download", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, codeUnauthorized, decodeError(t, body).Code)

	resp, _ = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/download?token=tok:missing", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	files.openErr = common.ErrNotFound
	resp, body = doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/download?token=tok:f-1", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, codeNotFound, decodeError(t, body).Code)
}

func TestUsageAndPurge(t *testing.T) {
	s, _ := newTestServer(t)
	authz := bearer(t, "u-1")

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Authorization", authz)
	resp, body := doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"owner_id":"u-1","used":40,"ceiling":100}`, string(body))

	req = httptest.NewRequest(http.MethodPost, "/api/purge", strings.NewReader(`{"password":"wrong"}`))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "application/json")
	resp, _ = doRequest(t, s, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/api/purge", strings.NewReader(`{"password":"pw"}`))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "application/json")
	resp, body = doRequest(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":3,"failed":1}`, string(body))
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, _ := doRequest(t, s, req)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}
