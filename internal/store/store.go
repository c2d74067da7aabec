// Package store owns the PostgreSQL connection pool, transactions, and query building.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // driver registration
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	driverName = "postgres"
	tracerName = "lendingdesk/store"
)

// Dialect builds every dynamic query in the application.
var Dialect = goqu.Dialect(driverName)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB wraps sqlx with tracing and transaction helpers.
type DB struct {
	*sqlx.DB
	tracer trace.Tracer
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*DB, error) {
	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(conn), nil
}

// New wraps an existing connection pool.
func New(conn *sqlx.DB) *DB {
	return &DB{DB: conn, tracer: otel.Tracer(tracerName)}
}

// Span starts a span named store.<name>.
func (db *DB) Span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "store."+name, trace.WithAttributes(attrs...))
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// WithTx runs fn in a single read-committed transaction and commits when fn succeeds.
func (db *DB) WithTx(ctx context.Context, name string, fn TxFunc) (err error) {
	ctx, span := db.Span(ctx, "tx."+name)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transaction rolled back")
		}
		span.End()
	}()

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return Failure("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			span.AddEvent("rollback.failed", trace.WithAttributes(attribute.String("error", rbErr.Error())))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return Failure("commit transaction", err)
	}
	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// Build renders a goqu dataset as a prepared statement with positional arguments.
func Build(ds interface {
	ToSQL() (string, []interface{}, error)
}) (string, []interface{}, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}

// From starts a prepared select over table.
func From(table ...interface{}) *goqu.SelectDataset {
	return Dialect.From(table...).Prepared(true)
}

func Insert(table interface{}) *goqu.InsertDataset {
	return Dialect.Insert(table).Prepared(true)
}

func Update(table interface{}) *goqu.UpdateDataset {
	return Dialect.Update(table).Prepared(true)
}

func Delete(table interface{}) *goqu.DeleteDataset {
	return Dialect.Delete(table).Prepared(true)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Contains returns an ILIKE pattern matching q anywhere in the column.
func Contains(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
