package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "postings"

// Bolt keeps blobs in a bucket of an embedded bbolt database. Each Put is its
// own transaction, so a posting list is replaced atomically on disk.
//
// bbolt rejects empty keys and keys over bolt.MaxKeySize. Those terms are
// kept in a second bucket ("<bucket>.digest") under their SHA-256, so every
// term is storable.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
	digest []byte
}

// OpenBolt opens (creating if needed) the database file at path. timeout
// bounds the wait for the file lock held by another process.
func OpenBolt(path, bucket string, timeout time.Duration) (*Bolt, error) {
	if bucket == "" {
		bucket = defaultBoltBucket
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating bolt directory %q: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	b := &Bolt{db: db, bucket: []byte(bucket), digest: []byte(bucket + ".digest")}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(b.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(b.digest)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return b, nil
}

func (b *Bolt) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, k := b.locate(tx, key)
		ok = bucket.Get(k) != nil
		return nil
	})
	if err != nil {
		return false, b.wrap("exists", key, err)
	}
	return ok, nil
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var blob []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket, k := b.locate(tx, key)
		v := bucket.Get(k)
		if v == nil {
			return fmt.Errorf("%w: %q", ErrMissingKey, key)
		}
		// v is only valid for the life of the transaction.
		blob = slices.Clone(v)
		return nil
	})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	return blob, nil
}

func (b *Bolt) Put(_ context.Context, key string, value []byte) error {
	if value == nil {
		// bbolt treats a nil value as absent on read.
		value = []byte{}
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, k := b.locate(tx, key)
		return bucket.Put(k, value)
	})
	if err != nil {
		return b.wrap("put", key, err)
	}
	return nil
}

// Update runs fn inside one bbolt read-write transaction; bbolt allows a
// single writer at a time, so concurrent updates cannot interleave.
func (b *Bolt) Update(_ context.Context, key string, fn UpdateFunc) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket, k := b.locate(tx, key)
		v := bucket.Get(k)
		next, write, err := fn(slices.Clone(v), v != nil)
		if err != nil || !write {
			return err
		}
		if next == nil {
			next = []byte{}
		}
		return bucket.Put(k, next)
	})
	if err != nil {
		return b.wrap("update", key, err)
	}
	return nil
}

// Ping reports whether the database is still open.
func (b *Bolt) Ping(_ context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{b.bucket, b.digest} {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("bucket %q missing", name)
			}
		}
		return nil
	})
}

// Path returns the database file path.
func (b *Bolt) Path() string {
	return b.db.Path()
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// locate returns the bucket and key a term is stored under.
func (b *Bolt) locate(tx *bolt.Tx, key string) (*bolt.Bucket, []byte) {
	if len(key) == 0 || len(key) > bolt.MaxKeySize {
		sum := sha256.Sum256([]byte(key))
		return tx.Bucket(b.digest), sum[:]
	}
	return tx.Bucket(b.bucket), []byte(key)
}

func (b *Bolt) wrap(op, key string, err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return fmt.Errorf("bolt %s %q: %w", op, key, ErrClosed)
	}
	return fmt.Errorf("bolt %s %q: %w", op, key, err)
}
