// Package dialect defines the low level contracts shared by the database
// backends of fluent.
//
// # Dialect Constants
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
// A Driver executes raw statements and starts transactions:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Drivers can be decorated, for example with statistics, debug logging or
// Prometheus metrics (see dialect/sql), and are wrapped by the dialect/sql
// Connection, which implements fluent.Connection on top of them.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, SQL builder, pools and connections
package dialect
