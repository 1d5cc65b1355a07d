package cache

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储，用于测试与单机开发
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, hash string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[hash]
	if !ok {
		return nil, ErrCacheMiss
	}
	e.Results = append([]byte(nil), e.Results...)
	return &e, nil
}

func (m *MemoryStore) Put(_ context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	e := *entry
	e.Results = append([]byte(nil), entry.Results...)

	m.mu.Lock()
	m.entries[entry.QueryHash] = e
	m.mu.Unlock()
	return nil
}

// Len 当前条目数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error { return nil }
