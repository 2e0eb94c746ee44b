package fluent

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnake(t *testing.T) {
	tests := map[string]string{
		"ID":        "id",
		"UserID":    "user_id",
		"HTTPCode":  "http_code",
		"CreatedAt": "created_at",
		"name":      "name",
		"Stars2":    "stars2",
	}
	for in, want := range tests {
		assert.Equal(t, want, snake(in), in)
	}
}

type audit struct {
	CreatedBy string
	Note      string `fluent:"-"`
}

type tagged struct {
	Schema
	audit
	ID       *int64
	Title    string `fluent:"headline"`
	Secret   string `fluent:"-"`
	At       time.Time
	Owner    *string
}

func TestFieldMap(t *testing.T) {
	fm := fieldsOf(reflect.TypeFor[tagged]())
	assert.Equal(t, []string{"created_by", "id", "headline", "at", "owner"}, fm.names())
	assert.Same(t, fm, fieldsOf(reflect.TypeFor[tagged]()), "layouts are cached")

	owner := "ann"
	v := tagged{Title: "t", Owner: &owner, audit: audit{CreatedBy: "bob"}}
	names, values := fm.values(reflect.ValueOf(v), func(c column) bool { return c.name == "id" })
	assert.Equal(t, []string{"created_by", "headline", "at", "owner"}, names)
	assert.Equal(t, []any{"bob", "t", time.Time{}, "ann"}, values)

	var dst tagged
	ptrs := fm.pointers(reflect.ValueOf(&dst).Elem())
	require.Len(t, ptrs, 5)
	*ptrs[2].(*string) = "scanned"
	assert.Equal(t, "scanned", dst.Title)
}

func TestResolve(t *testing.T) {
	c, err := resolve(func(g *tagged) *string { return &g.Title })
	require.NoError(t, err)
	assert.Equal(t, "headline", c.name)

	c, err = resolve(func(g *tagged) *string { return &g.CreatedBy })
	require.NoError(t, err)
	assert.Equal(t, "created_by", c.name, "fields of embedded structs are reachable")

	_, err = resolve(func(g *tagged) *string { return &g.Secret })
	require.ErrorIs(t, err, ErrInvalidKeyPath)
	_, err = resolve[tagged, string](nil)
	require.ErrorIs(t, err, ErrInvalidKeyPath)
	_, err = resolve(func(*int) *int { return nil })
	require.ErrorIs(t, err, ErrInvalidKeyPath)

	outside := time.Now()
	_, err = resolve(func(*tagged) *time.Time { return &outside })
	require.ErrorIs(t, err, ErrInvalidKeyPath)
}

func TestWhereNullable(t *testing.T) {
	owner := WhereNullable(func(g *tagged) **string { return &g.Owner })
	f, err := owner.EQ("ann").Filter()
	require.NoError(t, err)
	assert.Equal(t, Filter{Field: "owner", Method: MethodEQ, Value: "ann"}, f)
	f, err = owner.IsNull().Filter()
	require.NoError(t, err)
	assert.Equal(t, Filter{Field: "owner", Method: MethodIsNull}, f)
	assert.Equal(t, "owner", owner.Name())
}
