package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rowles/inverted-index/pkg/postgres"
)

const defaultPostgresTable = "postings"

// Postgres keeps one row per term and upserts on Put. Rows are keyed by the
// SHA-256 of the term, which is also stored as bytes, so NULs, invalid UTF-8
// and terms longer than a btree entry are stored like any other key.
type Postgres struct {
	client *postgres.Client
	table  string

	existsSQL string
	getSQL    string
	putSQL    string
}

// NewPostgres wraps a connected client and creates the table if needed. The
// Store owns the client from then on.
func NewPostgres(ctx context.Context, client *postgres.Client, table string) (*Postgres, error) {
	if table == "" {
		table = defaultPostgresTable
	}
	quoted := pq.QuoteIdentifier(table)
	p := &Postgres{
		client:    client,
		table:     table,
		existsSQL: fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE term_sha256 = $1)`, quoted),
		getSQL:    fmt.Sprintf(`SELECT blob FROM %s WHERE term_sha256 = $1`, quoted),
		putSQL: fmt.Sprintf(
			`INSERT INTO %s (term_sha256, term, blob) VALUES ($1, $2, $3)
			 ON CONFLICT (term_sha256) DO UPDATE SET blob = EXCLUDED.blob`, quoted),
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		term_sha256 BYTEA PRIMARY KEY,
		term        BYTEA NOT NULL,
		blob        BYTEA NOT NULL
	)`, quoted)
	if err := client.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", table, err)
	}
	return p, nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	if err := p.client.DB.QueryRowContext(ctx, p.existsSQL, termID(key)).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres exists %q: %w", key, err)
	}
	return ok, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	return p.get(ctx, p.client.DB, key)
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	return p.put(ctx, p.client.DB, key, value)
}

// Update runs fn on the current blob of key and writes its result in the same
// transaction. An advisory lock on table/term serialises concurrent updaters,
// including ones racing to create the row.
func (p *Postgres) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return p.client.InTxLocked(ctx, fmt.Sprintf("%s/%x", p.table, termID(key)), func(tx *sql.Tx) error {
		current, err := p.get(ctx, tx, key)
		exists := err == nil
		if err != nil && !errors.Is(err, ErrMissingKey) {
			return err
		}
		next, write, err := fn(current, exists)
		if err != nil || !write {
			return err
		}
		return p.put(ctx, tx, key, next)
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Postgres) Close() error {
	return p.client.Close()
}

func termID(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) get(ctx context.Context, q queryer, key string) ([]byte, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, p.getSQL, termID(key)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return blob, nil
}

func (p *Postgres) put(ctx context.Context, q queryer, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := q.ExecContext(ctx, p.putSQL, termID(key), []byte(key), value); err != nil {
		return fmt.Errorf("postgres put %q: %w", key, err)
	}
	return nil
}
