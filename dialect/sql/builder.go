package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/fluent"
	"github.com/syssam/fluent/dialect"
)

// Builder renders fluent queries as SQL statements for one dialect.
type Builder struct {
	dialect string
	sb      strings.Builder
	args    []any
	err     error
}

// Build renders q for the given dialect, returning the statement and its
// arguments. Identifiers are quoted and validated; values are always
// passed as arguments.
func Build(dialect string, q *fluent.Query) (string, []any, error) {
	b := &Builder{dialect: dialect}
	switch q.Action {
	case fluent.ActionRead:
		b.selectStmt(q)
	case fluent.ActionCount:
		b.countStmt(q)
	case fluent.ActionCreate:
		b.insertStmt(q)
	case fluent.ActionUpdate:
		b.updateStmt(q)
	case fluent.ActionDelete:
		b.deleteStmt(q)
	default:
		return "", nil, fmt.Errorf("dialect/sql: unsupported action %s", q.Action)
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return b.sb.String(), b.args, nil
}

// Returning reports whether the dialect reports generated identifiers
// with a RETURNING clause.
func Returning(d string) bool {
	return d == dialect.Postgres || d == dialect.SQLite
}

func (b *Builder) selectStmt(q *fluent.Query) {
	b.sb.WriteString("SELECT ")
	if len(q.Fields) == 0 {
		b.sb.WriteString("*")
	}
	for i, f := range q.Fields {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.ident(f)
	}
	b.sb.WriteString(" FROM ")
	b.ident(q.Entity)
	b.where(q.Filters)
	if len(q.Sorts) > 0 {
		b.sb.WriteString(" ORDER BY ")
		for i, s := range q.Sorts {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.ident(s.Field)
			if s.Desc {
				b.sb.WriteString(" DESC")
			}
		}
	}
	switch {
	case q.Limit > 0:
		b.sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	case q.Offset > 0 && b.dialect == dialect.MySQL:
		b.sb.WriteString(" LIMIT 18446744073709551615")
	case q.Offset > 0 && b.dialect == dialect.SQLite:
		b.sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		b.sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
	}
}

func (b *Builder) countStmt(q *fluent.Query) {
	b.sb.WriteString("SELECT COUNT(*) FROM ")
	b.ident(q.Entity)
	b.where(q.Filters)
}

func (b *Builder) insertStmt(q *fluent.Query) {
	if len(q.Fields) != len(q.Values) {
		b.err = fmt.Errorf("dialect/sql: insert into %s: %d fields and %d values", q.Entity, len(q.Fields), len(q.Values))
		return
	}
	b.sb.WriteString("INSERT INTO ")
	b.ident(q.Entity)
	switch {
	case len(q.Fields) == 0 && b.dialect == dialect.MySQL:
		b.sb.WriteString(" () VALUES ()")
	case len(q.Fields) == 0:
		b.sb.WriteString(" DEFAULT VALUES")
	default:
		b.sb.WriteString(" (")
		for i, f := range q.Fields {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.ident(f)
		}
		b.sb.WriteString(") VALUES (")
		for i, v := range q.Values {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.arg(v)
		}
		b.sb.WriteString(")")
	}
	if Returning(b.dialect) && q.IDField != "" {
		b.sb.WriteString(" RETURNING ")
		b.ident(q.IDField)
	}
}

func (b *Builder) updateStmt(q *fluent.Query) {
	if len(q.Fields) == 0 || len(q.Fields) != len(q.Values) {
		b.err = fmt.Errorf("dialect/sql: update %s: %d fields and %d values", q.Entity, len(q.Fields), len(q.Values))
		return
	}
	b.sb.WriteString("UPDATE ")
	b.ident(q.Entity)
	b.sb.WriteString(" SET ")
	for i, f := range q.Fields {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.ident(f)
		b.sb.WriteString(" = ")
		b.arg(q.Values[i])
	}
	b.where(q.Filters)
}

func (b *Builder) deleteStmt(q *fluent.Query) {
	b.sb.WriteString("DELETE FROM ")
	b.ident(q.Entity)
	b.where(q.Filters)
}

func (b *Builder) where(filters []fluent.Filter) {
	for i, f := range filters {
		if i == 0 {
			b.sb.WriteString(" WHERE ")
		} else {
			b.sb.WriteString(" AND ")
		}
		b.predicate(f)
	}
}

func (b *Builder) predicate(f fluent.Filter) {
	switch f.Method {
	case fluent.MethodEQ, fluent.MethodNEQ:
		b.ident(f.Field)
		switch {
		case f.Value == nil && f.Method == fluent.MethodEQ:
			b.sb.WriteString(" IS NULL")
		case f.Value == nil:
			b.sb.WriteString(" IS NOT NULL")
		default:
			b.sb.WriteString(" " + f.Method.String() + " ")
			b.arg(f.Value)
		}
	case fluent.MethodGT, fluent.MethodGTE, fluent.MethodLT, fluent.MethodLTE:
		b.ident(f.Field)
		b.sb.WriteString(" " + f.Method.String() + " ")
		b.arg(f.Value)
	case fluent.MethodIn, fluent.MethodNotIn:
		vs, ok := f.Value.([]any)
		if !ok {
			b.err = fmt.Errorf("dialect/sql: %s expects []any, got %T", f.Method, f.Value)
			return
		}
		if len(vs) == 0 {
			// An empty IN list matches nothing, an empty NOT IN list everything.
			if f.Method == fluent.MethodIn {
				b.sb.WriteString("1 = 0")
			} else {
				b.sb.WriteString("1 = 1")
			}
			return
		}
		b.ident(f.Field)
		b.sb.WriteString(" " + f.Method.String() + " (")
		for i, v := range vs {
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.arg(v)
		}
		b.sb.WriteString(")")
	case fluent.MethodIsNull, fluent.MethodNotNull:
		b.ident(f.Field)
		b.sb.WriteString(" " + f.Method.String())
	case fluent.MethodContains, fluent.MethodHasPrefix, fluent.MethodHasSuffix:
		s, ok := f.Value.(string)
		if !ok {
			b.err = fmt.Errorf("dialect/sql: %s expects a string, got %T", f.Method, f.Value)
			return
		}
		s = escapeLike(s)
		switch f.Method {
		case fluent.MethodContains:
			s = "%" + s + "%"
		case fluent.MethodHasPrefix:
			s += "%"
		case fluent.MethodHasSuffix:
			s = "%" + s
		}
		b.ident(f.Field)
		b.sb.WriteString(" LIKE ")
		b.arg(s)
		b.sb.WriteString(" ESCAPE '!'")
	default:
		b.err = fmt.Errorf("dialect/sql: unsupported filter method %s", f.Method)
	}
}

// ident writes a quoted identifier.
func (b *Builder) ident(s string) {
	if !isValidIdentifier(s) {
		if b.err == nil {
			b.err = fmt.Errorf("dialect/sql: invalid identifier %q", s)
		}
		return
	}
	q := `"`
	if b.dialect == dialect.MySQL {
		q = "`"
	}
	for i, part := range strings.Split(s, ".") {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(q + part + q)
	}
}

// arg writes a placeholder and records its value.
func (b *Builder) arg(v any) {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
		return
	}
	b.sb.WriteByte('?')
}

// escapeLike escapes the LIKE wildcards of s using '!' as escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
