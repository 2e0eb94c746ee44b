package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// sqlStateError is implemented by drivers reporting SQLSTATE codes, e.g. pgx.
type sqlStateError interface {
	SQLState() string
}

// IsConstraintError reports whether err resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports whether err resulted from a uniqueness
// constraint violation, e.g. a duplicate value in a unique index.
func IsUniqueConstraintError(err error) bool {
	return matchConstraint(err, constraintCodes{
		pg:     pgUniqueViolation,
		mysql:  []uint16{mysqlDuplicateEntry},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY},
		text:   []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	})
}

// IsForeignKeyConstraintError reports whether err resulted from a
// foreign-key constraint violation, e.g. a missing parent row.
func IsForeignKeyConstraintError(err error) bool {
	return matchConstraint(err, constraintCodes{
		pg:     pgForeignKeyViolation,
		mysql:  []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY},
		text:   []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	})
}

// IsCheckConstraintError reports whether err resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	return matchConstraint(err, constraintCodes{
		pg:     pgCheckViolation,
		mysql:  []uint16{mysqlCheckConstraintViolate},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_CHECK},
		text:   []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	})
}

type constraintCodes struct {
	pg     string
	mysql  []uint16
	sqlite []int
	text   []string
}

func matchConstraint(err error, c constraintCodes) bool {
	if err == nil {
		return false
	}
	var (
		pqErr    *pq.Error
		myErr    *mysql.MySQLError
		liteErr  *sqlite.Error
		stateErr sqlStateError
	)
	switch {
	case errors.As(err, &pqErr):
		if string(pqErr.Code) == c.pg {
			return true
		}
	case errors.As(err, &myErr):
		for _, n := range c.mysql {
			if myErr.Number == n {
				return true
			}
		}
	case errors.As(err, &liteErr):
		for _, code := range c.sqlite {
			if liteErr.Code() == code {
				return true
			}
		}
	case errors.As(err, &stateErr):
		if stateErr.SQLState() == c.pg {
			return true
		}
	}
	// Primary result codes and drivers without typed errors.
	msg := err.Error()
	for _, s := range c.text {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
