package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sc "github.com/dmitrijs2005/filevault/internal/server/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// gridBucket is the part of *gridfs.Bucket the store uses.
type gridBucket interface {
	upload(name string, r io.Reader) (primitive.ObjectID, error)
	open(id primitive.ObjectID) (io.ReadCloser, error)
	delete(id primitive.ObjectID) error
}

type mongoBucket struct {
	b *gridfs.Bucket
}

func (m mongoBucket) upload(name string, r io.Reader) (primitive.ObjectID, error) {
	return m.b.UploadFromStream(name, r)
}

func (m mongoBucket) open(id primitive.ObjectID) (io.ReadCloser, error) {
	return m.b.OpenDownloadStream(id)
}

func (m mongoBucket) delete(id primitive.ObjectID) error {
	return m.b.Delete(id)
}

// GridFSStore keeps blobs in a MongoDB GridFS bucket. Blob ids are the
// GridFS ObjectID in hex; the dated key is stored as the GridFS filename.
type GridFSStore struct {
	client *mongo.Client
	bucket gridBucket
}

var mongoConnect = func(ctx context.Context, uri string) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

func NewGridFSStore(ctx context.Context, cfg *sc.Config) (*GridFSStore, error) {
	client, err := mongoConnect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	b, err := gridfs.NewBucket(client.Database(cfg.MongoDatabase), options.GridFSBucket().SetName(cfg.MongoBucket))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}

	return &GridFSStore{client: client, bucket: mongoBucket{b: b}}, nil
}

func (g *GridFSStore) Put(ctx context.Context, r io.Reader) (string, error) {
	id, err := g.bucket.upload(NewKey(), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return id.Hex(), nil
}

func (g *GridFSStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrBlobNotFound
	}
	rc, err := g.bucket.open(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("gridfs open: %w", err)
	}
	return rc, nil
}

func (g *GridFSStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if err := g.bucket.delete(oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("gridfs delete: %w", err)
	}
	return nil
}

func (g *GridFSStore) Close(ctx context.Context) error {
	if g.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return g.client.Disconnect(ctx)
}
