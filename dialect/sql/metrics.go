package sql

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syssam/fluent/dialect"
)

// Metrics holds the prometheus collectors fed by MetricsDriver. Statements
// are labeled with the entity and action of their operation. It implements
// prometheus.Collector.
type Metrics struct {
	statements *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	txs        *prometheus.CounterVec
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics returns unregistered collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "statements_total",
			Help:      "Number of executed statements.",
		}, []string{"dialect", "entity", "action"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "errors_total",
			Help:      "Number of failed statements.",
		}, []string{"dialect", "entity", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "statement_duration_seconds",
			Help:      "Statement latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dialect", "entity", "action"}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sql",
			Name:      "transactions_total",
			Help:      "Number of finished transactions by outcome.",
		}, []string{"dialect", "outcome"}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.statements.Describe(ch)
	m.errors.Describe(ch)
	m.duration.Describe(ch)
	m.txs.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.statements.Collect(ch)
	m.errors.Collect(ch)
	m.duration.Collect(ch)
	m.txs.Collect(ch)
}

// observe records a statement under the operation carried by ctx.
func (m *Metrics) observe(ctx context.Context, dialect string, start time.Time, err error) {
	op := OperationFromContext(ctx)
	labels := []string{dialect, op.Entity, op.ActionName()}
	m.statements.WithLabelValues(labels...).Inc()
	m.duration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(labels...).Inc()
	}
}

// MetricsDriver wraps a Driver with prometheus instrumentation.
type MetricsDriver struct {
	dialect.Driver
	metrics *Metrics
}

// NewMetricsDriver wraps drv, recording into m.
func NewMetricsDriver(drv dialect.Driver, m *Metrics) *MetricsDriver {
	return &MetricsDriver{Driver: drv, metrics: m}
}

// WithMetrics is a PoolOption instrumenting every pool connection.
func WithMetrics(m *Metrics) PoolOption {
	return WithDriver(func(d dialect.Driver) dialect.Driver {
		return NewMetricsDriver(d, m)
	})
}

// Query executes a query and records it.
func (d *MetricsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.metrics.observe(ctx, d.Dialect(), start, err)
	return err
}

// Exec executes a statement and records it.
func (d *MetricsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.metrics.observe(ctx, d.Dialect(), start, err)
	return err
}

// Tx starts an instrumented transaction.
func (d *MetricsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &MetricsTx{Tx: tx, dialect: d.Dialect(), metrics: d.metrics}, nil
}

// MetricsTx wraps a transaction with prometheus instrumentation.
type MetricsTx struct {
	dialect.Tx
	dialect string
	metrics *Metrics
}

// Query executes a query within the transaction and records it.
func (tx *MetricsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.metrics.observe(ctx, tx.dialect, start, err)
	return err
}

// Exec executes a statement within the transaction and records it.
func (tx *MetricsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.metrics.observe(ctx, tx.dialect, start, err)
	return err
}

// Commit commits the transaction and records the outcome.
func (tx *MetricsTx) Commit() error {
	err := tx.Tx.Commit()
	if err != nil {
		tx.metrics.txs.WithLabelValues(tx.dialect, "error").Inc()
	} else {
		tx.metrics.txs.WithLabelValues(tx.dialect, "commit").Inc()
	}
	return err
}

// Rollback rolls back the transaction and records the outcome.
func (tx *MetricsTx) Rollback() error {
	tx.metrics.txs.WithLabelValues(tx.dialect, "rollback").Inc()
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*MetricsDriver)(nil)
	_ dialect.Tx     = (*MetricsTx)(nil)
)
