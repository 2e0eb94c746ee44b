package fluent

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"slices"
	"sync/atomic"
)

// QueryBuilder accumulates filters, sorting and range for a model query.
// It is immutable: every modifier returns a new builder and leaves the
// receiver untouched, so builders can be shared and extended freely.
// Errors raised while building are reported by the terminal operation.
type QueryBuilder[M any, ID Identifier] struct {
	entity  *Entity[M, ID]
	source  connSource
	filters []Filter
	sorts   []Sort
	offset  int
	limit   int
	err     error
}

// connSource resolves the connection of a query, with its release function.
type connSource func(ctx context.Context) (Connection, func() error, error)

var errStopped = errors.New("fluent: iteration stopped")

// Query returns a builder executing on conn.
func (e *Entity[M, ID]) Query(conn Connection) QueryBuilder[M, ID] {
	return QueryBuilder[M, ID]{
		entity: e,
		source: func(context.Context) (Connection, func() error, error) {
			return conn, func() error { return nil }, nil
		},
	}
}

// QueryOn returns a builder executing on the default database of M,
// resolved through c when a terminal operation runs. It fails with
// noDefaultDatabase if none is registered.
func (e *Entity[M, ID]) QueryOn(c *Container) QueryBuilder[M, ID] {
	return QueryBuilder[M, ID]{
		entity: e,
		source: func(ctx context.Context) (Connection, func() error, error) {
			ref, err := e.RequireDefaultDatabase()
			if err != nil {
				return nil, nil, err
			}
			return c.Connect(ctx, ref)
		},
	}
}

// QueryUsing returns a builder executing on the database ref of c.
func (e *Entity[M, ID]) QueryUsing(c *Container, ref DatabaseRef) QueryBuilder[M, ID] {
	return QueryBuilder[M, ID]{
		entity: e,
		source: func(ctx context.Context) (Connection, func() error, error) {
			return c.Connect(ctx, ref)
		},
	}
}

// Filter returns a builder with the given conditions added.
func (b QueryBuilder[M, ID]) Filter(conds ...Condition[M]) QueryBuilder[M, ID] {
	for _, c := range conds {
		f, err := c.Filter()
		if err != nil {
			return b.fail(err)
		}
		b = b.filter(f)
	}
	return b
}

// Sort returns a builder with the given orders appended.
func (b QueryBuilder[M, ID]) Sort(orders ...Order[M]) QueryBuilder[M, ID] {
	for _, o := range orders {
		if o.err != nil {
			return b.fail(o.err)
		}
		b.sorts = append(slices.Clip(b.sorts), o.sort)
	}
	return b
}

// Range returns a builder skipping offset rows and returning at most
// limit rows. A zero limit means no limit.
func (b QueryBuilder[M, ID]) Range(offset, limit int) QueryBuilder[M, ID] {
	b.offset, b.limit = max(offset, 0), max(limit, 0)
	return b
}

// ExcludeSoftDeleted returns a builder whose operations skip soft-deleted
// rows. Without it, soft-deleted rows are visible.
func (b QueryBuilder[M, ID]) ExcludeSoftDeleted() QueryBuilder[M, ID] {
	return b.marker(MethodIsNull)
}

// OnlySoftDeleted returns a builder whose operations see only
// soft-deleted rows.
func (b QueryBuilder[M, ID]) OnlySoftDeleted() QueryBuilder[M, ID] {
	return b.marker(MethodNotNull)
}

func (b QueryBuilder[M, ID]) marker(m Method) QueryBuilder[M, ID] {
	d := b.entity.deletedAt
	if d == nil {
		return b.fail(errNotSoftDeletable(b.entity.name))
	}
	return b.filter(Filter{Field: d.name, Method: m})
}

// filter appends a raw filter to the builder.
func (b QueryBuilder[M, ID]) filter(f Filter) QueryBuilder[M, ID] {
	b.filters = append(slices.Clip(b.filters), f)
	return b
}

func (b QueryBuilder[M, ID]) fail(err error) QueryBuilder[M, ID] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Build returns the backend query the builder would run for action.
func (b QueryBuilder[M, ID]) Build(action Action) (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	e := b.entity
	q := &Query{
		Entity:  e.name,
		Action:  action,
		IDField: e.id.name,
		Filters: slices.Clone(b.filters),
	}
	if action == ActionRead {
		q.Fields = e.fields.names()
		q.Sorts = slices.Clone(b.sorts)
		q.Limit, q.Offset = b.limit, b.offset
	}
	return q, nil
}

// Count returns the number of matching rows.
func (b QueryBuilder[M, ID]) Count(ctx context.Context) (uint64, error) {
	q, err := b.Build(ActionCount)
	if err != nil {
		return 0, err
	}
	var n int64
	err = b.execute(ctx, q, func(_ Connection, row Row) error {
		return row.Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return uint64(max(n, 0)), nil
}

// First returns the first matching model, or nil if none matched.
func (b QueryBuilder[M, ID]) First(ctx context.Context) (*M, error) {
	return b.first(ctx, true)
}

func (b QueryBuilder[M, ID]) first(ctx context.Context, hooks bool) (*M, error) {
	q, err := b.Build(ActionRead)
	if err != nil {
		return nil, err
	}
	q.Limit = 1
	var first *M
	err = b.execute(ctx, q, func(conn Connection, row Row) error {
		if first != nil {
			return nil
		}
		m, err := b.entity.decode(row)
		if err != nil {
			return err
		}
		if hooks {
			if err := b.entity.willRead(ctx, conn, m); err != nil {
				return err
			}
		}
		first = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return first, nil
}

// All returns all matching models. If decoding or a WillRead hook fails,
// no models are returned.
func (b QueryBuilder[M, ID]) All(ctx context.Context) ([]*M, error) {
	var all []*M
	for m, err := range b.Iter(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	return all, nil
}

// Iter returns a lazy sequence of the matching models. Rows are fetched
// and decoded while the caller ranges over the sequence, holding the
// connection until the loop ends. An error is yielded once, as the last
// element. The sequence can be ranged over only once; a second range
// yields an error.
func (b QueryBuilder[M, ID]) Iter(ctx context.Context) iter.Seq2[*M, error] {
	var used atomic.Bool
	return func(yield func(*M, error) bool) {
		if used.Swap(true) {
			yield(nil, errors.New("fluent: query sequence already consumed"))
			return
		}
		q, err := b.Build(ActionRead)
		if err != nil {
			yield(nil, err)
			return
		}
		stopped := false
		err = b.execute(ctx, q, func(conn Connection, row Row) error {
			m, err := b.entity.decode(row)
			if err != nil {
				return err
			}
			if err := b.entity.willRead(ctx, conn, m); err != nil {
				return err
			}
			if !yield(m, nil) {
				stopped = true
				return errStopped
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// execute resolves the connection, evaluates the query policy and runs q.
func (b QueryBuilder[M, ID]) execute(ctx context.Context, q *Query, onRow func(Connection, Row) error) (err error) {
	conn, release, err := b.source(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			if err == nil {
				err = rerr
			} else {
				b.entity.logger.WarnContext(ctx, "fluent: releasing connection", "entity", b.entity.name, "error", rerr)
			}
		}
	}()
	if p := b.entity.policy; p != nil {
		if err := p.EvalQuery(ctx, q); err != nil {
			return err
		}
	}
	return conn.Execute(ctx, q, func(row Row) error {
		return onRow(conn, row)
	})
}

// decode scans row into a new model.
func (e *Entity[M, ID]) decode(row Row) (*M, error) {
	m := new(M)
	if err := row.Scan(e.fields.pointers(reflect.ValueOf(m).Elem())...); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Entity[M, ID]) willRead(ctx context.Context, conn Connection, m *M) error {
	if err := e.model(m).WillRead(ctx, conn); err != nil {
		return e.abort(ctx, "WillRead", err)
	}
	return nil
}
