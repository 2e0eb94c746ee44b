package fluent

import (
	"context"
	"time"
)

// Model is the lifecycle contract of a persisted type. It is implemented
// by the pointer to the model struct; embed Schema to get the defaults and
// override only the hooks you need.
//
// Hooks run on the in-flight value and may modify it. A hook returning an
// error aborts the surrounding operation: a failed Will* hook prevents the
// physical operation, and Did* hooks do not run after a failed one.
type Model interface {
	WillCreate(ctx context.Context, conn Connection) error
	DidCreate(ctx context.Context, conn Connection) error
	// WillRead runs on every decoded row before it is handed to the caller.
	// Its failure fails the whole read and discards the fetched rows.
	WillRead(ctx context.Context, conn Connection) error
	WillUpdate(ctx context.Context, conn Connection) error
	DidUpdate(ctx context.Context, conn Connection) error
	WillDelete(ctx context.Context, conn Connection) error
	DidDelete(ctx context.Context, conn Connection) error
}

// Schema provides the default, no-op implementation of every Model hook.
//
//	type Galaxy struct {
//	    fluent.Schema
//	    ID   *int64
//	    Name string
//	}
type Schema struct{}

// WillCreate does nothing.
func (Schema) WillCreate(context.Context, Connection) error { return nil }

// DidCreate does nothing.
func (Schema) DidCreate(context.Context, Connection) error { return nil }

// WillRead does nothing.
func (Schema) WillRead(context.Context, Connection) error { return nil }

// WillUpdate does nothing.
func (Schema) WillUpdate(context.Context, Connection) error { return nil }

// DidUpdate does nothing.
func (Schema) DidUpdate(context.Context, Connection) error { return nil }

// WillDelete does nothing.
func (Schema) WillDelete(context.Context, Connection) error { return nil }

// DidDelete does nothing.
func (Schema) DidDelete(context.Context, Connection) error { return nil }

var _ Model = Schema{}

// Timestamped is implemented by models that carry creation and update
// timestamps, returning pointers to the two fields. A model tracking
// only one of them returns nil for the other.
type Timestamped interface {
	TimestampFields() (createdAt, updatedAt **time.Time)
}

// SoftDeletable is implemented by models that carry a deletion marker,
// returning a pointer to the field.
type SoftDeletable interface {
	DeletedAtField() **time.Time
}

// Op is the mutation operation.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o matches the given operation.
func (o Op) Is(op Op) bool { return o&op != 0 }

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "OpCreate"
	case OpUpdate:
		return "OpUpdate"
	case OpDelete:
		return "OpDelete"
	default:
		return "Op(unknown)"
	}
}

// Mutation describes a pending write, as seen by mutation policies.
type Mutation interface {
	// Op returns the operation.
	Op() Op
	// Type returns the entity name.
	Type() string
	// Fields returns the columns written by the mutation.
	Fields() []string
	// Field returns the written value of a column. For deletes it
	// returns the current value held by the model.
	Field(name string) (any, bool)
	// Query returns the query that will be executed.
	Query() *Query
}

// Policy decides whether queries and mutations of an entity may run.
// Queries are evaluated before execution and may be extended with filters.
// A nil error allows the operation; any other error is returned unchanged.
type Policy interface {
	EvalQuery(context.Context, *Query) error
	EvalMutation(context.Context, Mutation) error
}

type mutation struct {
	op     Op
	query  *Query
	fields []string
	values []any
}

func (m *mutation) Op() Op           { return m.op }
func (m *mutation) Type() string     { return m.query.Entity }
func (m *mutation) Fields() []string { return m.fields }
func (m *mutation) Query() *Query    { return m.query }

func (m *mutation) Field(name string) (any, bool) {
	for i, f := range m.fields {
		if f == name {
			return m.values[i], true
		}
	}
	return nil, false
}

// filterableMutation is a mutation keyed by filters (update, delete),
// so policies may narrow the affected rows.
type filterableMutation struct {
	*mutation
}

// Where appends filters to the mutation's query.
func (m filterableMutation) Where(filters ...Filter) {
	m.query.Where(filters...)
}
