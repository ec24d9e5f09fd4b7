// Package storage holds the error vocabulary shared by every store backend.
//
// Adapters translate driver errors into these sentinels so callers can branch
// with errors.Is without knowing which backend is configured:
//
//	sess, err := store.FindOne(ctx, userID)
//	if errors.Is(err, storage.ErrNotFound) {
//		// no session yet
//	}
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable is returned for transport or infrastructure failures.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps a backend failure so that it matches ErrUnavailable while
// keeping the original error in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
