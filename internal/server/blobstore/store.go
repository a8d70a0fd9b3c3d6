// Package blobstore stores opaque ciphertext blobs. Stores never see
// plaintext and know nothing about owners or quota.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	sc "github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/google/uuid"
)

// ErrBlobNotFound is returned by Get for unknown ids.
var ErrBlobNotFound = fmt.Errorf("%w: blob", common.ErrNotFound)

// Store is a content-opaque blob store.
type Store interface {
	// Put consumes r to EOF and returns the id under which it was stored.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get opens a stored blob; ErrBlobNotFound if there is none.
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a missing blob succeeds.
	Delete(ctx context.Context, id string) error
	// Close releases backend connections.
	Close(ctx context.Context) error
}

var timeNow = time.Now

// NewKey returns a fresh object key partitioned by upload date.
func NewKey() string {
	d := timeNow().UTC()
	return fmt.Sprintf("files/%04d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// New builds the Store selected by cfg.BlobBackend.
func New(ctx context.Context, cfg *sc.Config) (Store, error) {
	switch cfg.BlobBackend {
	case sc.BlobBackendMemory:
		return NewMemoryStore(), nil
	case sc.BlobBackendS3:
		return NewS3Store(ctx, cfg)
	case sc.BlobBackendGridFS:
		return NewGridFSStore(ctx, cfg)
	case sc.BlobBackendGCS:
		return NewGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown blob backend %q", common.ErrConfiguration, cfg.BlobBackend)
	}
}

// ctxReader stops a copy loop once ctx is done, for backends whose client
// calls take no context.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
