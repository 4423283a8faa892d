package store

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Store. Updates are serialized by a mutex.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Put(_ context.Context, collection, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(collection, key, value)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.docs[collection][key]
	next, err := fn(clone(current), exists)
	if errors.Is(err, ErrSkip) {
		return nil
	}
	if err != nil {
		return err
	}
	m.put(collection, key, next)
	return nil
}

func (m *Memory) List(_ context.Context, collection, prefix string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.docs[collection]
	keys := sortedMatches(coll, prefix)
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(coll[k]))
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.docs[collection], key)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) put(collection, key string, value []byte) {
	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.docs[collection] = coll
	}
	coll[key] = clone(value)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
