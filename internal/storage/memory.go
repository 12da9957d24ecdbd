package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process memory. Used for local development
// when no storage endpoint is configured, and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets Buckets
	objects map[string]map[string][]byte
	public  map[string]bool
}

func NewMemoryStore(buckets Buckets) *MemoryStore {
	return &MemoryStore{
		buckets: buckets,
		objects: make(map[string]map[string][]byte),
		public:  make(map[string]bool),
	}
}

func (s *MemoryStore) EnsureBuckets(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bucket := range []string{BucketRasters, BucketTiles} {
		if _, ok := s.objects[bucket]; !ok {
			s.objects[bucket] = make(map[string][]byte)
		}
	}
	s.public[BucketTiles] = true
	return nil
}

func (s *MemoryStore) Upload(_ context.Context, localPath, key, bucket, _ string) (string, error) {
	bucket = s.buckets.Normalize(bucket)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("upload source %s: %w", localPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[bucket]; !ok {
		s.objects[bucket] = make(map[string][]byte)
		if bucket == BucketTiles {
			s.public[bucket] = true
		}
	}
	s.objects[bucket][key] = append([]byte(nil), data...)
	return Ref(bucket, key), nil
}

func (s *MemoryStore) Download(_ context.Context, key, localPath, bucket string) (string, error) {
	bucket = s.buckets.Normalize(bucket)

	s.mu.RLock()
	data, ok := s.objects[bucket][key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return "", err
	}
	return localPath, nil
}

func (s *MemoryStore) List(_ context.Context, prefix, bucket string) ([]ObjectInfo, error) {
	bucket = s.buckets.Normalize(bucket)

	s.mu.RLock()
	defer s.mu.RUnlock()
	objects := make([]ObjectInfo, 0)
	for key, data := range s.objects[bucket] {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *MemoryStore) Delete(_ context.Context, key, bucket string) error {
	bucket = s.buckets.Normalize(bucket)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], key)
	return nil
}

// Get returns the raw bytes of a stored object. Test helper.
func (s *MemoryStore) Get(bucket, key string) ([]byte, bool) {
	bucket = s.buckets.Normalize(bucket)
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// IsPublic reports whether the bucket carries the public-read policy.
func (s *MemoryStore) IsPublic(bucket string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.public[s.buckets.Normalize(bucket)]
}
