package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/filevault/internal/client/models"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/google/uuid"
)

// Client talks to one filevault server.
type Client struct {
	baseURL *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
}

// UploadInput describes a file to send. Size is sent as Content-Length;
// pass -1 when unknown.
type UploadInput struct {
	Name        string
	FileName    string
	MimeType    string
	Description string
	Size        int64
	Body        io.Reader
}

// New builds a Client for baseURL. The timeout bounds metadata calls only;
// transfers are bounded by their context.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("bad server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("bad server url %q: scheme must be http or https", baseURL)
	}
	return &Client{baseURL: u, timeout: timeout, http: &http.Client{}}, nil
}

// BaseURL returns the normalized server URL, used as the session key.
func (c *Client) BaseURL() string { return c.baseURL.String() }

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) metaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// do sends req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set(common.AccessTokenHeaderName, "Bearer "+c.token)
	}
	req.Header.Set(common.RequestIDHeaderName, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := c.metaContext(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, nil), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Login exchanges credentials for an access token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, userName, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	in := map[string]string{"username": userName, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", in, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// Upload streams in.Body to the project.
func (c *Client) Upload(ctx context.Context, projectID string, in UploadInput) (*models.File, error) {
	q := url.Values{}
	if in.Name != "" {
		q.Set("name", in.Name)
	}
	if in.Description != "" {
		q.Set("description", in.Description)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/projects/"+url.PathEscape(projectID)+"/files", q), in.Body)
	if err != nil {
		return nil, err
	}
	if in.Size >= 0 {
		req.ContentLength = in.Size
	}
	if in.MimeType != "" {
		req.Header.Set("Content-Type", in.MimeType)
	}
	req.Header.Set(common.FileNameHeaderName, in.FileName)

	var f models.File
	if err := c.do(req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) List(ctx context.Context, projectID string) ([]models.File, error) {
	var files []models.File
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/files", nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) Get(ctx context.Context, fileID string) (*models.File, error) {
	var f models.File
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/"+url.PathEscape(fileID), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) Describe(ctx context.Context, fileID, description string) (*models.File, error) {
	var f models.File
	in := map[string]string{"description": description}
	if err := c.doJSON(ctx, http.MethodPatch, "/api/files/"+url.PathEscape(fileID), in, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) Delete(ctx context.Context, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(fileID), nil, nil)
}

// IssueToken asks for a download capability for fileID.
func (c *Client) IssueToken(ctx context.Context, fileID string) (*models.DownloadToken, error) {
	var t models.DownloadToken
	if err := c.doJSON(ctx, http.MethodPost, "/api/files/"+url.PathEscape(fileID)+"/token", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DownloadURL is the shareable link for a capability token.
func (c *Client) DownloadURL(token string, preview bool) string {
	q := url.Values{}
	q.Set("token", token)
	if preview {
		q.Set("preview", "true")
	}
	return c.endpoint("/api/download", q)
}

// Download streams the file behind token into w and returns the byte count.
// A body cut short by the server is reported as common.ErrStream.
func (c *Client) Download(ctx context.Context, token string, preview bool, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(token, preview), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, decodeError(resp)
	}

	tw := &trackingWriter{w: w}
	n, err := io.Copy(tw, resp.Body)
	if err != nil {
		switch {
		case tw.err != nil:
			return n, tw.err
		case ctx.Err() != nil:
			return n, ctx.Err()
		}
		return n, fmt.Errorf("%w: download interrupted after %d bytes: %w", common.ErrStream, n, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: download interrupted after %d of %d bytes", common.ErrStream, n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) Usage(ctx context.Context) (*models.Usage, error) {
	var u models.Usage
	if err := c.doJSON(ctx, http.MethodGet, "/api/usage", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Purge deletes every file of the caller after the server re-checks password.
func (c *Client) Purge(ctx context.Context, password string) (*models.PurgeResult, error) {
	var res models.PurgeResult
	in := map[string]string{"password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/purge", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// trackingWriter remembers write failures so Download can tell a local disk
// problem from a truncated response.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
