package fluent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftDelete(t *testing.T) {
	galaxies := newGalaxies(WithClock(fixedClock))
	require.True(t, galaxies.SoftDeletable())
	conn := &fakeConn{}
	s := &hookScript{}
	ctx := withHooks(context.Background(), s)
	id := int64(4)
	g := &Galaxy{ID: &id, Name: "Sombrero"}

	require.NoError(t, galaxies.SoftDelete(ctx, conn, g))
	assert.True(t, galaxies.IsSoftDeleted(g))
	require.NotNil(t, g.DeletedAt)
	assert.Equal(t, fixedNow, *g.DeletedAt)

	require.NoError(t, galaxies.Restore(ctx, conn, g))
	assert.False(t, galaxies.IsSoftDeleted(g))

	qs := conn.executed()
	require.Len(t, qs, 2)
	assert.Equal(t, ActionUpdate, qs[0].Action)
	assert.Equal(t, []string{"deleted_at"}, qs[0].Fields, "only the marker is written")
	assert.Equal(t, []any{fixedNow}, qs[0].Values)
	assert.Equal(t, []any{nil}, qs[1].Values)
	assert.Empty(t, s.called(), "soft deletion runs no hooks")
}

func TestSoftDeleteFailure(t *testing.T) {
	galaxies := newGalaxies()
	boom := errors.New("boom")
	id := int64(4)
	g := &Galaxy{ID: &id}

	err := galaxies.SoftDelete(context.Background(), &fakeConn{err: boom}, g)
	assert.Same(t, boom, err)
	assert.Nil(t, g.DeletedAt, "the marker is restored when the update fails")

	err = galaxies.SoftDelete(context.Background(), &fakeConn{}, &Galaxy{})
	require.ErrorIs(t, err, ErrIDRequired)
}

func TestSoftDeleteNotSupported(t *testing.T) {
	type Nebula struct {
		Schema
		ID *string
	}
	nebulae := MustNewEntity(func(n *Nebula) **string { return &n.ID })
	assert.False(t, nebulae.SoftDeletable())
	id := "crab"
	err := nebulae.SoftDelete(context.Background(), &fakeConn{}, &Nebula{ID: &id})
	require.ErrorIs(t, err, ErrNotSoftDeletable)
	assert.False(t, nebulae.IsSoftDeleted(&Nebula{ID: &id}))
}
