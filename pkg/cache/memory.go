package cache

import (
	"context"
	"sync"

	"github.com/harun/trackd/internal/observability"
)

// Memory is an in-process Store. Values are copied in and out so callers
// cannot mutate cached bytes.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	v, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		observability.RecordCacheOp("get", "miss")
		return nil, ErrMiss
	}
	observability.RecordCacheOp("get", "hit")
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	m.items[key] = v
	m.mu.Unlock()

	observability.RecordCacheOp("set", "ok")
	return nil
}
