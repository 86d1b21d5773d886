// Package memory keeps brief documents in process memory for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/seo-brief-automator/internal/storage"
)

type object struct {
	data        []byte
	contentType string
	updated     time.Time
}

// BlobStore stores documents in a map and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]object),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewBlobStoreWithClock stamps objects using now instead of the wall clock.
func NewBlobStoreWithClock(now func() time.Time) *BlobStore {
	s := NewBlobStore()
	s.now = now
	return s
}

// PutObject stores a copy of r's content.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	cleaned, err := storage.CleanPath(path)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[cleaned] = object{data: data, contentType: contentType, updated: s.now()}
	return "memory://" + cleaned, nil
}

// GetObject returns a copy of the stored bytes.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	cleaned, err := storage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[cleaned]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// ListObjects returns objects under prefix sorted by path.
func (s *BlobStore) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.ObjectInfo, 0, len(s.objects))
	for p, obj := range s.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, storage.ObjectInfo{Path: p, Size: int64(len(obj.data)), Updated: obj.updated})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ContentType reports the content type recorded for path.
func (s *BlobStore) ContentType(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[path].contentType
}
