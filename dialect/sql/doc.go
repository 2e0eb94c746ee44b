// Package sql runs fluent queries on database/sql.
//
// A Pool implements fluent.Database over a *sql.DB. Each Connect checks out
// a dedicated *sql.Conn, wrapped in a Connection that renders fluent.Query
// values as SQL for the PostgreSQL, MySQL or SQLite dialect:
//
//	pool, err := sql.OpenPool(dialect.Postgres, dsn)
//	if err != nil {
//	    return err
//	}
//	primary := fluent.NewDatabaseID[*sql.Pool]("primary")
//	fluent.Register(container, primary, pool)
//
// # Statements
//
// Identifiers are quoted for the dialect and validated; values are always
// bound as arguments. Creates report the generated identifier with a
// RETURNING clause on PostgreSQL and SQLite, and through LastInsertId on
// MySQL.
//
// # Instrumentation
//
// The driver of every pool connection can be wrapped with WithDriver.
// Statements run by Connection.Execute carry the entity and action of their
// fluent.Query, read back with OperationFromContext. WithStats collects
// statistics per operation and reports slow queries. WithMetrics exports
// the same breakdown to prometheus:
//
//	metrics := sql.NewMetrics("app")
//	prometheus.MustRegister(metrics)
//	pool := sql.NewPool(dialect.MySQL, db, sql.WithMetrics(metrics))
//
// # Session Variables
//
// WithVar attaches variables to a context that are set before every
// statement run with it, e.g. a tenant read by row level security
// policies. On a pool they are reset before the connection is returned.
//
// # Constraint Errors
//
// Database errors are returned unchanged. IsUniqueConstraintError,
// IsForeignKeyConstraintError and IsCheckConstraintError classify them for
// lib/pq, go-sql-driver/mysql and modernc.org/sqlite.
package sql
