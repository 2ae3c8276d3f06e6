// Package kvstore implements the persisted bucket/key store behind settings,
// alerts and price history.
package kvstore

import (
	"context"
	"sync"

	"github.com/pricelens/backend/internal/domain"
)

// MemoryStore keeps buckets in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.buckets[bucket][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(ctx context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(s.buckets[bucket]))
	for k, v := range s.buckets[bucket] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *MemoryStore) DeleteBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, bucket)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
