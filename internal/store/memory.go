package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in a map. Nothing survives a restart.
// Failures can be injected for exercising error paths.
type MemoryBackend struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	putErr error
	getErr error
	puts   int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(ctx context.Context, userID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	doc, ok := m.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (m *MemoryBackend) Put(ctx context.Context, userID string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.docs[userID] = append([]byte(nil), doc...)
	m.puts++
	return nil
}

func (m *MemoryBackend) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryBackend) Close() error { return nil }

// FailPuts makes every following Put return err. Passing nil restores
// normal behavior.
func (m *MemoryBackend) FailPuts(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

// FailGets makes every following Get return err
func (m *MemoryBackend) FailGets(err error) {
	m.mu.Lock()
	m.getErr = err
	m.mu.Unlock()
}

// Seed stores doc as is, bypassing failure injection
func (m *MemoryBackend) Seed(userID string, doc []byte) {
	m.mu.Lock()
	m.docs[userID] = append([]byte(nil), doc...)
	m.mu.Unlock()
}

// Puts reports how many Put calls succeeded
func (m *MemoryBackend) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
