package fluent

// Condition is a predicate on the columns of M.
type Condition[M any] struct {
	filter Filter
	err    error
}

// Filter returns the backend filter of the condition.
func (c Condition[M]) Filter() (Filter, error) { return c.filter, c.err }

// Field is a typed column of M holding values of type F.
type Field[M, F any] struct {
	name string
	err  error
}

// Where returns the column selected by the key path, for building conditions:
//
//	Planets.Query(conn).Filter(fluent.Where(func(p *Planet) *string { return &p.Name }).EQ("Earth"))
//
// For nullable fields (*T) use WhereNullable to compare against plain values.
func Where[M, F any](kp func(*M) *F) Field[M, F] {
	c, err := resolve(kp)
	return Field[M, F]{name: c.name, err: err}
}

// WhereNullable returns the nullable column selected by the key path, typed
// by its element so that comparisons take plain values.
func WhereNullable[M, F any](kp func(*M) **F) Field[M, F] {
	c, err := resolve(kp)
	return Field[M, F]{name: c.name, err: err}
}

// Name returns the column name.
func (f Field[M, F]) Name() string { return f.name }

func (f Field[M, F]) cond(m Method, v any) Condition[M] {
	return Condition[M]{filter: Filter{Field: f.name, Method: m, Value: v}, err: f.err}
}

// EQ returns a field == v condition.
func (f Field[M, F]) EQ(v F) Condition[M] { return f.cond(MethodEQ, v) }

// NEQ returns a field != v condition.
func (f Field[M, F]) NEQ(v F) Condition[M] { return f.cond(MethodNEQ, v) }

// GT returns a field > v condition.
func (f Field[M, F]) GT(v F) Condition[M] { return f.cond(MethodGT, v) }

// GTE returns a field >= v condition.
func (f Field[M, F]) GTE(v F) Condition[M] { return f.cond(MethodGTE, v) }

// LT returns a field < v condition.
func (f Field[M, F]) LT(v F) Condition[M] { return f.cond(MethodLT, v) }

// LTE returns a field <= v condition.
func (f Field[M, F]) LTE(v F) Condition[M] { return f.cond(MethodLTE, v) }

// In returns a field IN (vs...) condition. An empty list matches nothing.
func (f Field[M, F]) In(vs ...F) Condition[M] { return f.cond(MethodIn, anys(vs)) }

// NotIn returns a field NOT IN (vs...) condition. An empty list matches everything.
func (f Field[M, F]) NotIn(vs ...F) Condition[M] { return f.cond(MethodNotIn, anys(vs)) }

// IsNull returns a field IS NULL condition.
func (f Field[M, F]) IsNull() Condition[M] { return f.cond(MethodIsNull, nil) }

// NotNull returns a field IS NOT NULL condition.
func (f Field[M, F]) NotNull() Condition[M] { return f.cond(MethodNotNull, nil) }

// Contains returns a condition matching text columns containing s.
func (f Field[M, F]) Contains(s string) Condition[M] { return f.cond(MethodContains, s) }

// HasPrefix returns a condition matching text columns starting with s.
func (f Field[M, F]) HasPrefix(s string) Condition[M] { return f.cond(MethodHasPrefix, s) }

// HasSuffix returns a condition matching text columns ending with s.
func (f Field[M, F]) HasSuffix(s string) Condition[M] { return f.cond(MethodHasSuffix, s) }

func anys[F any](vs []F) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Order is a sort order on a column of M.
type Order[M any] struct {
	sort Sort
	err  error
}

// Asc orders by the selected column, ascending.
func Asc[M, F any](kp func(*M) *F) Order[M] {
	c, err := resolve(kp)
	return Order[M]{sort: Sort{Field: c.name}, err: err}
}

// Desc orders by the selected column, descending.
func Desc[M, F any](kp func(*M) *F) Order[M] {
	c, err := resolve(kp)
	return Order[M]{sort: Sort{Field: c.name, Desc: true}, err: err}
}
