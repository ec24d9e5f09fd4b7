package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/pkg/storage"
	"github.com/rs/zerolog/log"
)

// DefaultMemcachedTimeout is the socket timeout used when none is configured.
const DefaultMemcachedTimeout = 500 * time.Millisecond

// Memcached is a Store backed by one or more memcached servers.
type Memcached struct {
	client *memcache.Client
}

// NewMemcached creates a client for servers ("host:port").
func NewMemcached(servers []string, timeout time.Duration) (*Memcached, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: at least one server is required")
	}
	if timeout <= 0 {
		timeout = DefaultMemcachedTimeout
	}

	client := memcache.New(servers...)
	client.Timeout = timeout

	log.Info().Strs("servers", servers).Dur("timeout", timeout).Msg("Memcached cache configured")
	return &Memcached{client: client}, nil
}

// gomemcache has no context support; a cancelled context short-circuits
// before the call and the client timeout bounds the call itself.
func (m *Memcached) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := m.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			observability.RecordCacheOp("get", "miss")
			return nil, ErrMiss
		}
		observability.RecordCacheOp("get", "error")
		return nil, storage.Unavailable("memcached get", err)
	}

	observability.RecordCacheOp("get", "hit")
	return item.Value, nil
}

func (m *Memcached) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.client.Set(&memcache.Item{Key: key, Value: value}); err != nil {
		observability.RecordCacheOp("set", "error")
		return storage.Unavailable("memcached set", err)
	}

	observability.RecordCacheOp("set", "ok")
	return nil
}

// Ping checks that every configured server is reachable.
func (m *Memcached) Ping() error {
	if err := m.client.Ping(); err != nil {
		return storage.Unavailable("memcached ping", err)
	}
	return nil
}
