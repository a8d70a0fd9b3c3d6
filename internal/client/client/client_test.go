package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", time.Second)
	require.Error(t, err)
	_, err = New("://", time.Second)
	require.Error(t, err)
}

func TestLogin_StoresToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["username"] == "alice" && in["password"] == "pw" {
			writeJSON(w, http.StatusOK, map[string]string{"token": "tok-1"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "code": "unauthorized"})
	})
	mux.HandleFunc("GET /api/usage", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"owner_id": "u-1", "used": 5, "ceiling": 10})
	})
	c := newTestClient(t, mux)

	_, err := c.Login(context.Background(), "alice", "bad")
	require.ErrorIs(t, err, common.ErrUnauthorized)

	token, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	u, err := c.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, int64(5), u.BytesUsed)
	assert.Equal(t, int64(10), u.Ceiling)
}

func TestUpload_SendsHeadersAndBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/projects/{project}/files", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "p 1", r.PathValue("project"))
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, "a.txt", r.Header.Get("X-File-Name"))
		assert.Equal(t, int64(5), r.ContentLength)
		assert.Equal(t, "Report", r.URL.Query().Get("name"))
		assert.Equal(t, "q1 numbers", r.URL.Query().Get("description"))
		writeJSON(w, http.StatusCreated, map[string]any{"id": "f-1", "size": len(body), "filename": "a.txt"})
	})
	c := newTestClient(t, mux)
	c.SetToken("tok")

	f, err := c.Upload(context.Background(), "p 1", UploadInput{
		Name: "Report", FileName: "a.txt", MimeType: "text/plain", Description: "q1 numbers",
		Size: 5, Body: strings.NewReader("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "f-1", f.ID)
	assert.Equal(t, int64(5), f.Size)
}

func TestErrors_MapToSentinels(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusInsufficientStorage, "quota_exceeded", common.ErrQuotaExceeded},
		{http.StatusForbidden, "forbidden", common.ErrForbidden},
		{http.StatusNotFound, "not_found", common.ErrNotFound},
		{http.StatusBadRequest, "validation", common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": tt.code + " happened", "code": tt.code})
			}))

			_, err := c.Get(context.Background(), "f-1")
			require.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Contains(t, err.Error(), tt.code+" happened")
		})
	}
}

func TestErrors_NonJSONBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))

	err := c.Delete(context.Background(), "f-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Nil(t, apiErr.Unwrap())
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second)
	require.NoError(t, err)
	_, err = c.Usage(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDescribeDeleteTokenPurge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/files/f-1", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeJSON(w, http.StatusOK, map[string]any{"id": "f-1", "description": in["description"], "edited": true})
	})
	mux.HandleFunc("DELETE /api/files/f-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/files/f-1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "cap", "expires_at": "2026-01-01T00:01:00Z"})
	})
	mux.HandleFunc("POST /api/purge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"deleted": 2, "failed": 0})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	f, err := c.Describe(ctx, "f-1", "new text")
	require.NoError(t, err)
	assert.Equal(t, "new text", f.Description)
	assert.True(t, f.Edited)

	require.NoError(t, c.Delete(ctx, "f-1"))

	tok, err := c.IssueToken(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "cap", tok.Token)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), tok.ExpiresAt.UTC())

	res, err := c.Purge(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		switch r.URL.Query().Get("token") {
		case "good":
			assert.Equal(t, "true", r.URL.Query().Get("preview"))
			_, _ = w.Write([]byte("file body"))
		case "short":
			w.Header().Set("Content-Length", "100")
			_, _ = w.Write([]byte("partial"))
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired", "code": "unauthorized"})
		}
	})
	c := newTestClient(t, mux)
	c.SetToken("should-not-be-sent")
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, "good", true, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "file body", buf.String())

	buf.Reset()
	_, err = c.Download(ctx, "short", false, &buf)
	require.ErrorIs(t, err, common.ErrStream)

	_, err = c.Download(ctx, "expired", false, &buf)
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDownload_LocalWriteErrorIsNotStreamError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))

	_, err := c.Download(context.Background(), "t", false, failingWriter{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrStream))
	assert.Contains(t, err.Error(), "disk full")
}

func TestDownloadURL(t *testing.T) {
	c, err := New("https://files.example.com/vault/", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/vault/api/download?token=a%2Bb", c.DownloadURL("a+b", false))
	assert.Equal(t, "https://files.example.com/vault", c.BaseURL())
}
