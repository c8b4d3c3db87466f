// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "get", key); err != nil {
		return nil, err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "set", key); err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "delete", key); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "update", key); err != nil {
		return nil, err
	}
	current, exists := m.data[key]
	next, err := fn(append([]byte(nil), current...), exists)
	if err != nil {
		return nil, err
	}
	m.data[key] = append([]byte(nil), next...)
	return next, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(ctx, "ping", "")
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return ioError(op, key, err)
	}
	if m.closed {
		return ioError(op, key, errClosed)
	}
	return nil
}
