package sql

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syssam/fluent"
	"github.com/syssam/fluent/dialect"
)

// Operation identifies the fluent operation a statement runs for.
// Statements issued outside Connection.Execute, such as schema
// statements, belong to the zero Operation.
type Operation struct {
	Entity string
	Action fluent.Action
}

// IsRaw reports whether o is the zero Operation.
func (o Operation) IsRaw() bool { return o.Entity == "" }

// ActionName returns the action name, or "raw" for the zero Operation.
func (o Operation) ActionName() string {
	if o.IsRaw() {
		return "raw"
	}
	return o.Action.String()
}

// String returns the operation as "action entity", e.g. "count bars".
func (o Operation) String() string {
	if o.IsRaw() {
		return "raw"
	}
	return o.Action.String() + " " + o.Entity
}

type operationKey struct{}

func withOperation(ctx context.Context, q *fluent.Query) context.Context {
	return context.WithValue(ctx, operationKey{}, Operation{Entity: q.Entity, Action: q.Action})
}

// OperationFromContext returns the operation of the statement run with ctx.
func OperationFromContext(ctx context.Context) Operation {
	op, _ := ctx.Value(operationKey{}).(Operation)
	return op
}

// OperationStats counts the statements of one operation.
type OperationStats struct {
	Statements int64
	Errors     int64
	Slow       int64
	Duration   time.Duration
}

// Avg returns the average statement duration.
func (s OperationStats) Avg() time.Duration {
	if s.Statements == 0 {
		return 0
	}
	return s.Duration / time.Duration(s.Statements)
}

func (s OperationStats) String() string {
	return fmt.Sprintf("statements=%d errors=%d slow=%d avg=%s", s.Statements, s.Errors, s.Slow, s.Avg())
}

func (s *OperationStats) merge(o OperationStats) {
	s.Statements += o.Statements
	s.Errors += o.Errors
	s.Slow += o.Slow
	s.Duration += o.Duration
}

// QueryStats collects statement statistics per operation. It is safe for
// concurrent use and is usually shared by the drivers of all connections
// of a pool.
type QueryStats struct {
	mu  sync.Mutex
	ops map[Operation]*OperationStats
}

func (s *QueryStats) record(op Operation, d time.Duration, err error, slow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ops == nil {
		s.ops = make(map[Operation]*OperationStats)
	}
	st := s.ops[op]
	if st == nil {
		st = &OperationStats{}
		s.ops[op] = st
	}
	st.Statements++
	st.Duration += d
	if err != nil {
		st.Errors++
	}
	if slow {
		st.Slow++
	}
}

// Stats returns a snapshot of the statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{Operations: make(map[Operation]OperationStats, len(s.ops))}
	for op, st := range s.ops {
		snap.Operations[op] = *st
		snap.Total.merge(*st)
	}
	return snap
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	Total      OperationStats
	Operations map[Operation]OperationStats
}

// Of returns the statistics of action on entity.
func (s StatsSnapshot) Of(entity string, action fluent.Action) OperationStats {
	return s.Operations[Operation{Entity: entity, Action: action}]
}

// String returns the totals followed by every operation in name order.
func (s StatsSnapshot) String() string {
	var sb strings.Builder
	sb.WriteString(s.Total.String())
	ops := slices.SortedFunc(maps.Keys(s.Operations), func(a, b Operation) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, op := range ops {
		fmt.Fprintf(&sb, "; %s: %s", op, s.Operations[op])
	}
	return sb.String()
}

// SlowQuery describes a statement that ran longer than the slow threshold.
type SlowQuery struct {
	Operation Operation
	Statement string
	Args      []any
	Duration  time.Duration
}

// SlowQueryHook is called for every slow statement.
type SlowQueryHook func(context.Context, SlowQuery)

// StatsDriver records the statements run on a Driver into a QueryStats.
type StatsDriver struct {
	dialect.Driver
	stats     *QueryStats
	threshold time.Duration
	slow      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. The default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithQueryStats records into stats instead of a private QueryStats.
func WithQueryStats(stats *QueryStats) StatsOption {
	return func(s *StatsDriver) {
		s.stats = stats
	}
}

// WithSlowQueryHook calls hook for every slow statement.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slow = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings on l, or on the
// default logger if l is nil.
func WithSlowQueryLog(l *slog.Logger) StatsOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, q SlowQuery) {
		l.WarnContext(ctx, "slow query detected",
			"entity", q.Operation.Entity,
			"action", q.Operation.ActionName(),
			"duration", q.Duration,
			"statement", q.Statement,
			"args", q.Args,
		)
	})
}

// NewStatsDriver wraps drv with statistics collection.
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	d := &StatsDriver{
		Driver:    drv,
		stats:     &QueryStats{},
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// QueryStats returns the statistics the driver records into.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// Query runs a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

// Exec runs a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, stmt string, args any, run func() error) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	op := OperationFromContext(ctx)
	slow := elapsed > d.threshold
	d.stats.record(op, elapsed, err, slow)
	if slow && d.slow != nil {
		argv, _ := args.([]any)
		d.slow(ctx, SlowQuery{Operation: op, Statement: stmt, Args: argv, Duration: elapsed})
	}
	return err
}

// StatsTx is a transaction started by a StatsDriver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query runs a query in the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Query(ctx, query, args, v)
	})
}

// Exec runs a statement in the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Exec(ctx, query, args, v)
	})
}

// DebugDriver logs every statement run on a Driver at debug level.
type DebugDriver struct {
	dialect.Driver
	logger *slog.Logger
}

// NewDebugDriver wraps drv, logging to l or to the default logger if l is nil.
func NewDebugDriver(drv dialect.Driver, l *slog.Logger) *DebugDriver {
	if l == nil {
		l = slog.Default()
	}
	return &DebugDriver{Driver: drv, logger: l}
}

// Query logs and runs a query.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, "query", query, args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs and runs a statement.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, d.logger, "exec", query, args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged too.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.logger.DebugContext(ctx, "fluent/sql: begin")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, logger: d.logger}, nil
}

// DebugTx is a transaction started by a DebugDriver.
type DebugTx struct {
	dialect.Tx
	logger *slog.Logger
}

// Query logs and runs a query in the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, "tx query", query, args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec logs and runs a statement in the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	logStatement(ctx, tx.logger, "tx exec", query, args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.logger.Debug("fluent/sql: commit")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.logger.Debug("fluent/sql: rollback")
	return tx.Tx.Rollback()
}

func logStatement(ctx context.Context, l *slog.Logger, kind, stmt string, args any) {
	op := OperationFromContext(ctx)
	l.DebugContext(ctx, "fluent/sql: "+kind,
		"entity", op.Entity,
		"action", op.ActionName(),
		"statement", stmt,
		"args", args,
	)
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)

// WithStats is a PoolOption recording the statements of every pool
// connection into stats.
//
//	stats := &sql.QueryStats{}
//	pool, err := sql.OpenPool(dialect.Postgres, dsn, sql.WithStats(stats, sql.WithSlowQueryLog(nil)))
func WithStats(stats *QueryStats, opts ...StatsOption) PoolOption {
	return WithDriver(func(d dialect.Driver) dialect.Driver {
		return NewStatsDriver(d, append([]StatsOption{WithQueryStats(stats)}, opts...)...)
	})
}
