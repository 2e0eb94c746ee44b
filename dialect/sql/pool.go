package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syssam/fluent"
	"github.com/syssam/fluent/dialect"
)

// Pool is a fluent.Database over a database/sql connection pool. Every
// Connect checks out a dedicated *sql.Conn, returned by Release.
type Pool struct {
	db      *sql.DB
	dialect string
	wrap    []func(dialect.Driver) dialect.Driver
}

var _ fluent.Database = (*Pool)(nil)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDriver wraps the driver of every connection, e.g. with a
// StatsDriver or a MetricsDriver. Wrappers apply in order.
func WithDriver(wrap func(dialect.Driver) dialect.Driver) PoolOption {
	return func(p *Pool) {
		p.wrap = append(p.wrap, wrap)
	}
}

// NewPool returns a Pool over db.
func NewPool(dialect string, db *sql.DB, opts ...PoolOption) *Pool {
	p := &Pool{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPool opens a database/sql pool and returns a Pool over it.
func OpenPool(dialect, source string, opts ...PoolOption) (*Pool, error) {
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, err
	}
	return NewPool(dialect, db, opts...), nil
}

// DB returns the underlying database/sql pool.
func (p *Pool) DB() *sql.DB { return p.db }

// Connect checks out a connection from the pool.
func (p *Pool) Connect(ctx context.Context) (fluent.Connection, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return NewConnection(p.driver(OpenConn(p.dialect, conn))), nil
}

// Shared returns a connection running every statement on the pool itself,
// without checking out a dedicated connection. It needs no release.
func (p *Pool) Shared() fluent.Connection {
	return NewConnection(p.driver(OpenDB(p.dialect, p.db)))
}

// Release returns a connection acquired by Connect to the pool.
func (p *Pool) Release(c fluent.Connection) error {
	conn, ok := c.(*Connection)
	if !ok {
		return fmt.Errorf("dialect/sql: release of foreign connection %T", c)
	}
	return conn.drv.Close()
}

// Close closes the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

func (p *Pool) driver(d dialect.Driver) dialect.Driver {
	for _, wrap := range p.wrap {
		d = wrap(d)
	}
	return d
}
