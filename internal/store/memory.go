package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is the default Store: a hash map from term to blob. Blobs are copied
// on the way in and out so callers can reuse their buffers.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
	}
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	blob, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return slices.Clone(blob), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.blobs[key] = slices.Clone(value)
	return nil
}

// Update runs fn under the write lock.
func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	current, exists := m.blobs[key]
	next, write, err := fn(slices.Clone(current), exists)
	if err != nil || !write {
		return err
	}
	m.blobs[key] = slices.Clone(next)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Close releases the map. Operations after Close fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = nil
	m.closed = true
	return nil
}
