package kvstore

import (
	"context"
	"sync"
)

type MemKVStore struct {
	mu   sync.RWMutex
	Data map[string]string
}

var _ KVStore = (*MemKVStore)(nil)

func NewMemKVStore() *MemKVStore {
	return &MemKVStore{
		Data: make(map[string]string),
	}
}

func (s *MemKVStore) Get(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Data[path], nil
}

func (s *MemKVStore) Set(ctx context.Context, path, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[path] = val
	return nil
}
