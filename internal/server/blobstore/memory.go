package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// MemoryStore keeps blobs in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Put(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", err
	}
	id := NewKey()

	m.mu.Lock()
	m.blobs[id] = data
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

// Len reports how many blobs are held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
