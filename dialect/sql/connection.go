package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/syssam/fluent"
	"github.com/syssam/fluent/dialect"
)

// Connection runs fluent queries on a dialect.Driver. It implements
// fluent.Connection, fluent.TransactionSupporting and fluent.SchemaSupporting.
type Connection struct {
	drv     dialect.Driver
	ex      dialect.ExecQuerier
	tx      dialect.Tx
	done    *txDone
	dialect string
}

var (
	_ fluent.Connection            = (*Connection)(nil)
	_ fluent.TransactionSupporting = (*Connection)(nil)
	_ fluent.SchemaSupporting      = (*Connection)(nil)
	_ fluent.TransactionScoped     = (*Connection)(nil)
)

// NewConnection returns a Connection executing on drv.
func NewConnection(drv dialect.Driver) *Connection {
	return &Connection{drv: drv, ex: drv, dialect: drv.Dialect()}
}

// Dialect returns the dialect name.
func (c *Connection) Dialect() string { return c.dialect }

// Driver returns the underlying driver.
func (c *Connection) Driver() dialect.Driver { return c.drv }

// InTx reports whether c runs inside a transaction.
func (c *Connection) InTx() bool { return c.tx != nil }

// AfterTransaction runs fn once the transaction of c commits or rolls back,
// or immediately when c is not inside a transaction.
func (c *Connection) AfterTransaction(fn func()) {
	if c.done == nil {
		fn()
		return
	}
	c.done.add(fn)
}

// Execute renders q and runs it, calling onRow for every result row.
func (c *Connection) Execute(ctx context.Context, q *fluent.Query, onRow func(fluent.Row) error) error {
	if q.Action == fluent.ActionUpdate && len(q.Fields) == 0 {
		return nil
	}
	query, args, err := Build(c.dialect, q)
	if err != nil {
		return err
	}
	ctx = withOperation(ctx, q)
	switch {
	case q.Action == fluent.ActionRead, q.Action == fluent.ActionCount:
		return c.query(ctx, query, args, onRow)
	case q.Action == fluent.ActionCreate && Returning(c.dialect):
		return c.query(ctx, query, args, onRow)
	case q.Action == fluent.ActionCreate:
		var res sql.Result
		if err := c.ex.Exec(ctx, query, args, &res); err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil || id == 0 {
			// The table has no generated key.
			return nil
		}
		return onRow(valueRow{id})
	default:
		return c.ex.Exec(ctx, query, args, nil)
	}
}

func (c *Connection) query(ctx context.Context, query string, args []any, onRow func(fluent.Row) error) (err error) {
	rows := &Rows{}
	if err := c.ex.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for rows.Next() {
		if err := onRow(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Transaction runs fn in a transaction, committing when it succeeds and
// rolling back when it fails or panics. Transactions do not nest.
func (c *Connection) Transaction(ctx context.Context, fn func(ctx context.Context, tx fluent.Connection) error) (err error) {
	if c.tx != nil {
		return fluent.ErrTxStarted
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return err
	}
	txc := &Connection{drv: c.drv, ex: tx, tx: tx, done: &txDone{}, dialect: c.dialect}
	defer txc.done.run()
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, txc); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, &fluent.RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit()
}

// ExecSchema runs raw schema statements in order, stopping at the first failure.
func (c *Connection) ExecSchema(ctx context.Context, stmts ...string) error {
	for _, stmt := range stmts {
		if err := c.ex.Exec(ctx, stmt, []any{}, nil); err != nil {
			return err
		}
	}
	return nil
}

// txDone holds the callbacks run when a transaction ends.
type txDone struct {
	mu  sync.Mutex
	fns []func()
}

func (d *txDone) add(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns = append(d.fns, fn)
}

func (d *txDone) run() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// valueRow is a row built from values already in memory.
type valueRow []any

func (r valueRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("dialect/sql: scan %d values into %d destinations", len(r), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, r[i]); err != nil {
			return err
		}
	}
	return nil
}

// assign stores src in the value pointed to by dest, converting between
// numeric kinds and formatting integers as strings.
func assign(dest, src any) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("dialect/sql: scan destination %T is not a non-nil pointer", dest)
	}
	dv = dv.Elem()
	sv := reflect.ValueOf(src)
	if !sv.IsValid() {
		dv.SetZero()
		return nil
	}
	switch {
	case sv.Type().AssignableTo(dv.Type()):
		dv.Set(sv)
	case dv.Kind() == reflect.String && sv.CanInt():
		dv.SetString(strconv.FormatInt(sv.Int(), 10))
	case numeric(dv.Kind()) && numeric(sv.Kind()):
		dv.Set(sv.Convert(dv.Type()))
	case dv.Kind() == reflect.Pointer:
		if dv.IsNil() {
			dv.Set(reflect.New(dv.Type().Elem()))
		}
		return assign(dv.Interface(), src)
	default:
		return errors.New("dialect/sql: cannot scan " + sv.Type().String() + " into " + dv.Type().String())
	}
	return nil
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
