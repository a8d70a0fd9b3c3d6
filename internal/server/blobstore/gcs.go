package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	sc "github.com/dmitrijs2005/filevault/internal/server/config"
	"google.golang.org/api/option"
)

// gcsBucket is the slice of a *storage.BucketHandle the store uses.
type gcsBucket interface {
	writer(ctx context.Context, key string) io.WriteCloser
	reader(ctx context.Context, key string) (io.ReadCloser, error)
	delete(ctx context.Context, key string) error
}

type gcsHandle struct {
	b *storage.BucketHandle
}

func (h gcsHandle) writer(ctx context.Context, key string) io.WriteCloser {
	w := h.b.Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return w
}

func (h gcsHandle) reader(ctx context.Context, key string) (io.ReadCloser, error) {
	return h.b.Object(key).NewReader(ctx)
}

func (h gcsHandle) delete(ctx context.Context, key string) error {
	return h.b.Object(key).Delete(ctx)
}

// GCSStore keeps blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket gcsBucket
}

var newGCSClient = storage.NewClient

func NewGCSStore(ctx context.Context, cfg *sc.Config) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := newGCSClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: gcsHandle{b: client.Bucket(cfg.GCSBucket)}}, nil
}

func (g *GCSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	key := NewKey()

	// Cancelling ctx aborts the writer and discards the partial object.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.writer(ctx, key)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close: %w", err)
	}
	return key, nil
}

func (g *GCSStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := g.bucket.reader(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("gcs read: %w", err)
	}
	return rc, nil
}

func (g *GCSStore) Delete(ctx context.Context, id string) error {
	if err := g.bucket.delete(ctx, id); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete: %w", err)
	}
	return nil
}

func (g *GCSStore) Close(context.Context) error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
