package store

import (
	"context"
	"fmt"

	pkgredis "github.com/rowles/inverted-index/pkg/redis"
)

const defaultRedisPrefix = "iidx:term:"

// Redis stores each blob as a plain string value under prefix+term, with no
// expiry. SET replaces the whole value, which keeps a posting list update a
// single round trip. Update is optimistic: it retries when another writer
// changes the key between the read and the write.
type Redis struct {
	client *pkgredis.Client
	prefix string
}

// NewRedis wraps an already connected client. The Store owns the client from
// then on and closes it in Close.
func NewRedis(client *pkgredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.Exists(ctx, r.prefix+key)
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return ok, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := r.client.Get(ctx, r.prefix+key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return blob, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := r.client.Update(ctx, r.prefix+key, fn); err != nil {
		return fmt.Errorf("redis update %q: %w", key, err)
	}
	return nil
}

// Flush deletes every key under the store's prefix and returns how many were
// removed.
func (r *Redis) Flush(ctx context.Context) (int64, error) {
	return r.client.FlushByPattern(ctx, r.prefix+"*")
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
