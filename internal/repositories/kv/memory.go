package kv

import (
	"context"
	"sync"
)

// Memory is an in-process KV store. Each key is guarded by the store mutex so
// writes are atomic per key; values are copied on the way in and out.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemory constructs an empty memory-backed store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

// Get implements repositories.KV.
func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	dup := make([]byte, len(value))
	copy(dup, value)
	return dup, true, nil
}

// Set implements repositories.KV.
func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	dup := make([]byte, len(value))
	copy(dup, value)
	s.mu.Lock()
	s.m[key] = dup
	s.mu.Unlock()
	return nil
}

// Remove implements repositories.KV.
func (s *Memory) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}
