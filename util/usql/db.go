// Package usql wraps database/sql so every statement is timed in gocore stats.
package usql

import (
	"context"
	"database/sql"
	"time"

	"github.com/ordishs/gocore"
)

var (
	stat = gocore.NewStat("SQL")
)

// track records the duration of query under the SQL stat, keyed by its text.
func track(query string, start time.Time) {
	stat.NewStat(query).AddTime(start)
}

// DB is a wrapper around sql.DB that records the duration of each query.
type DB struct {
	*sql.DB
}

func Open(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	defer track(query, gocore.CurrentTime())
	return db.DB.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	defer track(query, gocore.CurrentTime())
	return db.DB.QueryRowContext(ctx, query, args...)
}

// Exec is only used for schema setup, which runs before any context exists.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	defer track(query, gocore.CurrentTime())
	return db.DB.Exec(query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer track(query, gocore.CurrentTime())
	return db.DB.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction whose statements are timed like the ones issued on DB.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Tx{tx}, nil
}

// Tx is a wrapper around sql.Tx with the same instrumentation as DB.
type Tx struct {
	*sql.Tx
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	defer track(query, gocore.CurrentTime())
	return tx.Tx.QueryRowContext(ctx, query, args...)
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer track(query, gocore.CurrentTime())
	return tx.Tx.ExecContext(ctx, query, args...)
}
