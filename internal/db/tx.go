package db

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner opens transactions. *sql.DB satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

var ErrCannotBegin = errors.New("db: handle can not begin a transaction")

// Tx is a transaction scope threaded through store calls.
//
// A Tx either owns its transaction (opened by Begin from a pool) or borrows one
// handed in by the caller. Commit, Rollback and Release are no-ops on a borrowed
// transaction: its owner decides the outcome.
type Tx struct {
	tx       *sql.Tx
	owned    bool
	finished bool
}

// Begin reuses handle when it already is a *sql.Tx and opens a new owned
// transaction otherwise.
func Begin(ctx context.Context, handle DBTX) (*Tx, error) {
	if tx, ok := handle.(*sql.Tx); ok {
		return &Tx{tx: tx}, nil
	}
	beginner, ok := handle.(Beginner)
	if !ok {
		return nil, ErrCannotBegin
	}
	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, owned: true}, nil
}

// Executor returns the handle store calls must use.
func (t *Tx) Executor() DBTX {
	return t.tx
}

func (t *Tx) Owned() bool {
	return t.owned
}

func (t *Tx) Commit() error {
	if !t.owned || t.finished {
		return nil
	}
	t.finished = true
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	if !t.owned || t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Release returns the connection of an owned transaction to the pool, rolling
// back whatever was neither committed nor rolled back. Safe to defer.
func (t *Tx) Release() {
	if !t.owned || t.finished {
		return
	}
	t.finished = true
	_ = t.tx.Rollback()
}

// WithTx runs fn inside a transaction scope derived from handle. An owned
// transaction is committed when fn succeeds and rolled back on error or panic.
// Panics are rethrown.
func WithTx(ctx context.Context, handle DBTX, fn func(ctx context.Context, tx DBTX) error) (err error) {
	scope, err := Begin(ctx, handle)
	if err != nil {
		return err
	}
	defer scope.Release()

	defer func() {
		if p := recover(); p != nil {
			_ = scope.Rollback()
			panic(p)
		}
		if err != nil {
			_ = scope.Rollback()
			return
		}
		err = scope.Commit()
	}()

	err = fn(ctx, scope.Executor())
	return err
}
