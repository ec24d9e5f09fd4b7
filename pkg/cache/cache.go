// Package cache is the key-value read path used to publish the latest
// metrics snapshot. Values are opaque bytes and never expire.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key holds no value.
var ErrMiss = errors.New("cache miss")

// Store is a process-wide key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites key unconditionally.
	Set(ctx context.Context, key string, value []byte) error
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
