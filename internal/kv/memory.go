package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and as a scratch
// backend. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string

	// FailSet, when non-nil, makes Set return the error for matching
	// keys. Lets tests exercise aborted-write paths.
	FailSet func(key string) error
}

func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
