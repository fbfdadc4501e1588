// Package postgres opens a pooled lib/pq connection and runs work inside
// transactions, retrying the ones Postgres aborts for serialization.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rowles/inverted-index/pkg/config"
)

const maxTxAttempts = 3

// SQLSTATE codes of aborts that succeed when the transaction is rerun.
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

type Client struct {
	DB *sql.DB
}

// New opens the pool and pings it within ctx.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Exec runs each statement in order outside a transaction.
func (c *Client) Exec(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InTx runs fn in a transaction, committing if it returns nil. A transaction
// aborted with a serialization failure or deadlock is rerun from the start.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var err error
	for range maxTxAttempts {
		err = c.inTx(ctx, fn)
		if !Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// InTxLocked is InTx holding a transaction-scoped advisory lock on lockKey, so
// that callers using the same key run one at a time even when the row they
// touch does not exist yet. lockKey is sent as bytes and may hold any value.
func (c *Client) InTxLocked(ctx context.Context, lockKey string, fn func(tx *sql.Tx) error) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(encode($1::bytea, 'hex')))`, []byte(lockKey)); err != nil {
			return fmt.Errorf("acquiring advisory lock %q: %w", lockKey, err)
		}
		return fn(tx)
	})
}

func (c *Client) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Retryable reports whether err is a Postgres abort that a rerun can fix.
func Retryable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && retryableCodes[pqErr.Code]
}

// Transient reports whether a connection error may go away on its own. Bad
// credentials and a missing database do not.
func Transient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return true
	}
	switch pqErr.Code.Class() {
	case "28", "3D":
		return false
	}
	return true
}
