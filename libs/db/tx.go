package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxOptions controls InTx. Attempts counts the first try.
type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	Attempts int
	Backoff  time.Duration
}

// InTx runs fn inside a transaction and commits when it returns nil.
// Serialization failures and deadlocks roll back and retry fn from scratch,
// so fn must not keep state across attempts.
func InTx(ctx context.Context, pool *Pool, opts TxOptions, fn func(pgx.Tx) error) error {
	if pool == nil || pool.Pool == nil {
		return errors.New("db not configured")
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 20 * time.Millisecond
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = runOnce(ctx, pool, opts.IsoLevel, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func runOnce(ctx context.Context, pool *Pool, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
