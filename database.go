package fluent

import (
	"context"
	"fmt"
	"strings"
)

// Action is the kind of operation a Query describes.
type Action uint

// Query actions.
const (
	ActionRead Action = iota
	ActionCount
	ActionCreate
	ActionUpdate
	ActionDelete
)

var actionNames = [...]string{
	ActionRead:   "read",
	ActionCount:  "count",
	ActionCreate: "create",
	ActionUpdate: "update",
	ActionDelete: "delete",
}

// String returns the action name.
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", a)
}

// Method is a filter comparison operator.
type Method uint

// Filter methods.
const (
	MethodEQ Method = iota
	MethodNEQ
	MethodGT
	MethodGTE
	MethodLT
	MethodLTE
	MethodIn
	MethodNotIn
	MethodIsNull
	MethodNotNull
	MethodContains
	MethodHasPrefix
	MethodHasSuffix
)

var methodNames = [...]string{
	MethodEQ:        "=",
	MethodNEQ:       "<>",
	MethodGT:        ">",
	MethodGTE:       ">=",
	MethodLT:        "<",
	MethodLTE:       "<=",
	MethodIn:        "IN",
	MethodNotIn:     "NOT IN",
	MethodIsNull:    "IS NULL",
	MethodNotNull:   "IS NOT NULL",
	MethodContains:  "CONTAINS",
	MethodHasPrefix: "HAS PREFIX",
	MethodHasSuffix: "HAS SUFFIX",
}

// String returns the operator text.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", m)
}

// Filter is a single predicate on a column. For MethodIn and MethodNotIn
// Value holds a []any; for the null checks it is ignored.
type Filter struct {
	Field  string
	Method Method
	Value  any
}

// String returns the filter as text, for logs and cache keys.
func (f Filter) String() string {
	switch f.Method {
	case MethodIsNull, MethodNotNull:
		return f.Field + " " + f.Method.String()
	default:
		return fmt.Sprintf("%s %s %v", f.Field, f.Method, f.Value)
	}
}

// Sort orders results by a column.
type Sort struct {
	Field string
	Desc  bool
}

// Query is the backend-neutral description of one operation. Backends
// translate it to their own language; policies may inspect and extend it.
type Query struct {
	Entity  string
	Action  Action
	IDField string
	// Fields lists the selected columns for reads, and the written columns
	// for creates and updates (with Values in the same order).
	Fields  []string
	Values  []any
	Filters []Filter
	Sorts   []Sort
	Limit   int // Zero means no limit.
	Offset  int
}

// Where appends filters to the query.
func (q *Query) Where(filters ...Filter) {
	q.Filters = append(q.Filters, filters...)
}

// Value returns the written value of the given column.
func (q *Query) Value(field string) (any, bool) {
	for i, f := range q.Fields {
		if f == field && i < len(q.Values) {
			return q.Values[i], true
		}
	}
	return nil, false
}

// String returns a compact description of the query.
func (q *Query) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", q.Action, q.Entity)
	if len(q.Filters) > 0 {
		sb.WriteString(" where")
		for i, f := range q.Filters {
			if i > 0 {
				sb.WriteString(" and")
			}
			sb.WriteString(" ")
			sb.WriteString(f.String())
		}
	}
	return sb.String()
}

// clone returns a deep copy of the slices held by q.
func (q *Query) clone() *Query {
	c := *q
	c.Fields = append([]string(nil), q.Fields...)
	c.Values = append([]any(nil), q.Values...)
	c.Filters = append([]Filter(nil), q.Filters...)
	c.Sorts = append([]Sort(nil), q.Sorts...)
	return &c
}

// Row is a single result row.
type Row interface {
	Scan(dest ...any) error
}

// QuerySupporting is implemented by backends that can execute queries.
//
// Execute runs q and calls onRow for every result row, in order. Reads
// yield rows with the columns in q.Fields; counts yield one row with a
// single integer column; creates yield one row holding the identifier
// (or no row when the backend cannot report one); updates and deletes
// yield no rows. An error from onRow stops the iteration and is returned.
type QuerySupporting interface {
	Execute(ctx context.Context, q *Query, onRow func(Row) error) error
}

// TransactionSupporting is implemented by backends with transactions.
type TransactionSupporting interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Connection) error) error
}

// SchemaSupporting is implemented by backends that accept raw schema statements.
type SchemaSupporting interface {
	ExecSchema(ctx context.Context, stmts ...string) error
}

// TransactionScoped is implemented by connections that know whether they
// run inside a transaction. AfterTransaction registers fn to run once that
// transaction commits or rolls back; outside a transaction fn runs at once.
type TransactionScoped interface {
	InTx() bool
	AfterTransaction(fn func())
}

func inTransaction(conn Connection) bool {
	ts, ok := conn.(TransactionScoped)
	return ok && ts.InTx()
}

// Connection is an open session with a backend.
type Connection interface {
	QuerySupporting
	Dialect() string
}

// Database is a pool of connections.
type Database interface {
	// Connect acquires a connection from the pool.
	Connect(ctx context.Context) (Connection, error)
	// Release returns a connection acquired by Connect.
	Release(Connection) error
	// Close closes the pool.
	Close() error
}

// Transaction runs fn inside a transaction on conn. It fails with
// unsupportedCapability if conn cannot start transactions.
func Transaction(ctx context.Context, conn Connection, fn func(ctx context.Context, tx Connection) error) error {
	ts, ok := conn.(TransactionSupporting)
	if !ok {
		return NewError(UnsupportedCapability,
			fmt.Sprintf("%s connection does not support transactions", conn.Dialect()))
	}
	return ts.Transaction(ctx, fn)
}

// ExecSchema runs raw schema statements on conn. It fails with
// unsupportedCapability if conn does not accept them.
func ExecSchema(ctx context.Context, conn Connection, stmts ...string) error {
	ss, ok := conn.(SchemaSupporting)
	if !ok {
		return NewError(UnsupportedCapability,
			fmt.Sprintf("%s connection does not support schema statements", conn.Dialect()))
	}
	return ss.ExecSchema(ctx, stmts...)
}
