package fluent

import (
	"context"
	"reflect"
	"time"

	"github.com/syssam/fluent/contrib/dataloader"
)

// Save creates m if its identifier is unset and updates it otherwise.
// Use Create to insert a model with a pre-assigned identifier.
func (e *Entity[M, ID]) Save(ctx context.Context, conn Connection, m *M) error {
	if _, ok := e.ID(m); ok {
		return e.Update(ctx, conn, m)
	}
	return e.Create(ctx, conn, m)
}

// Create inserts m. It runs WillCreate, sets the timestamps, inserts the
// row, stores the generated identifier in m and runs DidCreate. Nothing is
// inserted when WillCreate fails, and DidCreate does not run when the
// insert fails. A failed insert leaves the timestamps and identifier of m
// as they were.
func (e *Entity[M, ID]) Create(ctx context.Context, conn Connection, m *M) error {
	hooks := e.model(m)
	if err := hooks.WillCreate(ctx, conn); err != nil {
		return e.abort(ctx, "WillCreate", err)
	}
	restore := e.snapshot(m)
	now := e.timestamp()
	e.setTime(e.createdAt, m, now)
	e.setTime(e.updatedAt, m, now)
	_, hasID := e.ID(m)
	fields, values := e.fields.values(reflect.ValueOf(m).Elem(), func(c column) bool {
		return !hasID && c.name == e.id.name
	})
	q := &Query{
		Entity:  e.name,
		Action:  ActionCreate,
		IDField: e.id.name,
		Fields:  fields,
		Values:  values,
	}
	if err := e.evalMutation(ctx, &mutation{op: OpCreate, query: q, fields: fields, values: values}); err != nil {
		restore()
		return err
	}
	err := conn.Execute(ctx, q, func(row Row) error {
		if hasID {
			return nil
		}
		var id ID
		if err := row.Scan(&id); err != nil {
			return err
		}
		e.SetID(m, id)
		return nil
	})
	if err != nil {
		restore()
		return err
	}
	if _, ok := e.ID(m); !ok {
		restore()
		return errIDRequired(e.name)
	}
	if err := hooks.DidCreate(ctx, conn); err != nil {
		return e.abort(ctx, "DidCreate", err)
	}
	return nil
}

// Update writes all columns of m to the row with its identifier. It fails
// with idRequired if the identifier is unset. A failed write restores the
// update timestamp of m.
func (e *Entity[M, ID]) Update(ctx context.Context, conn Connection, m *M) error {
	id, err := e.RequireID(m)
	if err != nil {
		return err
	}
	hooks := e.model(m)
	if err := hooks.WillUpdate(ctx, conn); err != nil {
		return e.abort(ctx, "WillUpdate", err)
	}
	restore := e.snapshot(m)
	e.setTime(e.updatedAt, m, e.timestamp())
	fields, values := e.fields.values(reflect.ValueOf(m).Elem(), func(c column) bool {
		return c.name == e.id.name
	})
	if err := e.update(ctx, conn, id, fields, values); err != nil {
		restore()
		return err
	}
	if err := hooks.DidUpdate(ctx, conn); err != nil {
		return e.abort(ctx, "DidUpdate", err)
	}
	return nil
}

// Delete removes the row of m, ignoring any deletion marker. It fails
// with idRequired if the identifier is unset.
func (e *Entity[M, ID]) Delete(ctx context.Context, conn Connection, m *M) error {
	id, err := e.RequireID(m)
	if err != nil {
		return err
	}
	hooks := e.model(m)
	if err := hooks.WillDelete(ctx, conn); err != nil {
		return e.abort(ctx, "WillDelete", err)
	}
	q := &Query{
		Entity:  e.name,
		Action:  ActionDelete,
		IDField: e.id.name,
		Filters: []Filter{e.idFilter(id)},
	}
	fields, values := e.fields.values(reflect.ValueOf(m).Elem(), nil)
	mu := filterableMutation{&mutation{op: OpDelete, query: q, fields: fields, values: values}}
	if err := e.evalMutation(ctx, mu); err != nil {
		return err
	}
	if err := conn.Execute(ctx, q, discardRows); err != nil {
		return err
	}
	e.invalidate(ctx, conn, id)
	if err := hooks.DidDelete(ctx, conn); err != nil {
		return e.abort(ctx, "DidDelete", err)
	}
	return nil
}

// Find returns the model with the given identifier, or nil if there is none.
// Lookups inside a transaction never read or fill the entity cache.
func (e *Entity[M, ID]) Find(ctx context.Context, conn Connection, id ID) (*M, error) {
	if e.cache != nil && !inTransaction(conn) {
		return e.findCached(ctx, conn, id)
	}
	return e.Query(conn).filter(e.idFilter(id)).First(ctx)
}

// FindMany returns the models with the given identifiers, in the order of
// ids. Identifiers without a row yield nil entries.
func (e *Entity[M, ID]) FindMany(ctx context.Context, conn Connection, ids []ID) ([]*M, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	models, err := e.Query(conn).filter(Filter{Field: e.id.name, Method: MethodIn, Value: anys(ids)}).All(ctx)
	if err != nil {
		return nil, err
	}
	return dataloader.OrderByKeysNoError(ids, models, e.key), nil
}

// BatchFunc returns a batch loader of models by identifier, for use with
// DataLoader implementations. Identifiers without a row fail with
// dataloader.ErrNotFound; a failed query fails every identifier.
func (e *Entity[M, ID]) BatchFunc(conn Connection) dataloader.BatchFunc[ID, *M] {
	return func(ctx context.Context, ids []ID) ([]*M, []error) {
		if len(ids) == 0 {
			return nil, nil
		}
		models, err := e.Query(conn).filter(Filter{Field: e.id.name, Method: MethodIn, Value: anys(ids)}).All(ctx)
		if err != nil {
			errs := make([]error, len(ids))
			for i := range errs {
				errs[i] = err
			}
			return make([]*M, len(ids)), errs
		}
		return dataloader.OrderByKeys(ids, models, e.key)
	}
}

func (e *Entity[M, ID]) key(m *M) ID {
	id, _ := e.ID(m)
	return id
}

// update writes fields of the row with identifier id.
func (e *Entity[M, ID]) update(ctx context.Context, conn Connection, id ID, fields []string, values []any) error {
	q := &Query{
		Entity:  e.name,
		Action:  ActionUpdate,
		IDField: e.id.name,
		Fields:  fields,
		Values:  values,
		Filters: []Filter{e.idFilter(id)},
	}
	mu := filterableMutation{&mutation{op: OpUpdate, query: q, fields: fields, values: values}}
	if err := e.evalMutation(ctx, mu); err != nil {
		return err
	}
	if err := conn.Execute(ctx, q, discardRows); err != nil {
		return err
	}
	e.invalidate(ctx, conn, id)
	return nil
}

func (e *Entity[M, ID]) evalMutation(ctx context.Context, m Mutation) error {
	if e.policy == nil {
		return nil
	}
	return e.policy.EvalMutation(ctx, m)
}

func (e *Entity[M, ID]) idFilter(id ID) Filter {
	return Filter{Field: e.id.name, Method: MethodEQ, Value: id}
}

func (e *Entity[M, ID]) timestamp() *time.Time {
	t := e.now()
	return &t
}

// snapshot returns a function putting back the timestamps and identifier
// m holds now.
func (e *Entity[M, ID]) snapshot(m *M) func() {
	id := *e.idKey(m)
	var created, updated *time.Time
	if e.createdAt != nil {
		created = *e.createdAt.key(m)
	}
	if e.updatedAt != nil {
		updated = *e.updatedAt.key(m)
	}
	return func() {
		*e.idKey(m) = id
		e.setTime(e.createdAt, m, created)
		e.setTime(e.updatedAt, m, updated)
	}
}

func discardRows(Row) error { return nil }
