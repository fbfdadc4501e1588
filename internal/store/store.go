// Package store defines the key→blob contract the index persists posting
// lists through, together with its backends: an in-memory map, an embedded
// bbolt file, Redis, and PostgreSQL.
//
// Keys are terms and values are opaque byte slices. Put is last-write-wins and
// a Get after Put(k, v) returns exactly v until the next Put to k. No backend
// offers iteration or deletion through this interface.
package store

import (
	"context"
	"errors"
)

var (
	// ErrMissingKey is returned by Get when the key has never been Put.
	ErrMissingKey = errors.New("store: missing key")
	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("store: closed")
)

// Store is the capability set {exists, get, put} the index depends on.
// Backend failures are returned as errors distinct from ErrMissingKey.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s if it is a Pinger and succeeds otherwise.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// UpdateFunc receives the current blob of a key (nil and exists=false when
// absent) and returns the blob to write. Returning write=false leaves the key
// untouched.
type UpdateFunc func(current []byte, exists bool) (next []byte, write bool, err error)

// Updater is implemented by backends that can run a read-modify-write of one
// key as a single exclusive step. Without it, a get followed by a put from two
// writers can lose one of the updates.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// AsUpdater returns s as an Updater if s, and every Store it wraps, supports
// atomic updates. Decorators expose the Store they wrap through
// Unwrap() Store.
func AsUpdater(s Store) (Updater, bool) {
	if w, ok := s.(interface{ Unwrap() Store }); ok {
		if _, ok := AsUpdater(w.Unwrap()); !ok {
			return nil, false
		}
	}
	u, ok := s.(Updater)
	return u, ok
}
