package relstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/runner"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Conn is a live connection to a relational store. All operations speak to
// the store exclusively through this interface; it is the seam test doubles
// implement.
type Conn interface {
	// Exec runs a statement and returns the number of affected rows, when the
	// statement reports one.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a query and returns all rows, generically scanned.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// sqlConn implements Conn over database/sql.
type sqlConn struct {
	db   *sql.DB
	lggr logger.Logger
}

var _ Conn = (*sqlConn)(nil)
var _ runner.Conn = (Conn)(nil)

// Dial connects to the relational store with the given DSN using the
// PostgreSQL driver. Dial failures are connection errors per the runner
// taxonomy and are wrapped in runner.ErrConnection.
func Dial(ctx context.Context, dsn string, lggr logger.Logger) (Conn, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", runner.ErrConnection, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", runner.ErrConnection, err)
	}

	return NewConn(db, lggr), nil
}

// NewConn wraps an already-open database handle. Used by tests to run the
// operation catalog against alternative database/sql drivers.
func NewConn(db *sql.DB, lggr logger.Logger) Conn {
	return &sqlConn{db: db, lggr: lggr.Named("relstore")}
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	c.lggr.Debugw("Executing statement", "query", query)

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	// DDL statements do not report affected rows
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return n, nil
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	c.lggr.Debugw("Executing query", "query", query)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

func (c *sqlConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *sqlConn) Close(ctx context.Context) error {
	c.lggr.Debugw("Closing relational store connection")

	return c.db.Close()
}
