package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Querier is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// RunInTx runs fn inside a transaction whose handle travels in the context.
// Repositories pick it up through Conn, so several repositories can share one
// transaction without knowing about each other. Nested calls join the outer
// transaction.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.getTx(ctx) != nil {
		return fn(ctx)
	}

	return db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or the pool when there is none.
func (db *DB) Conn(ctx context.Context) Querier {
	if tx := db.getTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func (db *DB) getTx(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}
