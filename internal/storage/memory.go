package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a process-local Store
func NewMemoryStore() Store {
	return &memoryStore{
		values: make(map[string]string),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.values[key] = value
	return nil
}
