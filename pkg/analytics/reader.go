package analytics

import (
	"context"
	"errors"

	"github.com/harun/trackd/pkg/cache"
	"github.com/harun/trackd/pkg/storage"
)

// ErrNoDataYet is returned by Reader.Latest before the first publish.
var ErrNoDataYet = errors.New("no metrics snapshot published yet")

// Reader serves the latest published snapshot from the cache.
type Reader struct {
	cache cache.Store
	key   string
}

// NewReader creates a Reader over c. An empty key selects DefaultCacheKey.
func NewReader(c cache.Store, key string) *Reader {
	if key == "" {
		key = DefaultCacheKey
	}
	return &Reader{cache: c, key: key}
}

// Latest returns the snapshot exactly as the last run published it.
func (r *Reader) Latest(ctx context.Context) (*Snapshot, error) {
	data, err := r.cache.Get(ctx, r.key)
	if err != nil {
		if cache.IsMiss(err) {
			return nil, ErrNoDataYet
		}
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		return nil, storage.Unavailable("read metrics cache", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, storage.Unavailable("read metrics cache", err)
	}
	return snap, nil
}
