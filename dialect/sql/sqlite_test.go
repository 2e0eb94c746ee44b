package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/fluent"
	"github.com/syssam/fluent/dialect"
	"github.com/syssam/fluent/dialect/sql"
)

type Bar struct {
	fluent.Schema
	ID        *int64
	Baz       int
	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

func (b *Bar) TimestampFields() (createdAt, updatedAt **time.Time) {
	return &b.CreatedAt, &b.UpdatedAt
}

func (b *Bar) DeletedAtField() **time.Time { return &b.DeletedAt }

var Bars = fluent.MustNewEntity(func(b *Bar) **int64 { return &b.ID })

const barsTable = `CREATE TABLE bars (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	baz INTEGER NOT NULL UNIQUE,
	created_at DATETIME,
	updated_at DATETIME,
	deleted_at DATETIME
)`

func openSQLite(t *testing.T) (*sql.Pool, fluent.Connection) {
	t.Helper()
	pool, err := sql.OpenPool(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: opens its own database.
	pool.DB().SetMaxOpenConns(1)
	conn, err := pool.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, pool.Release(conn))
		assert.NoError(t, pool.Close())
	})
	require.NoError(t, fluent.ExecSchema(context.Background(), conn, barsTable))
	return pool, conn
}

func TestSQLiteSoftDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	_, conn := openSQLite(t)
	counts := func() (visible, all uint64) {
		t.Helper()
		visible, err := Bars.Query(conn).ExcludeSoftDeleted().Count(ctx)
		require.NoError(t, err)
		all, err = Bars.Query(conn).Count(ctx)
		require.NoError(t, err)
		return visible, all
	}

	bar := &Bar{Baz: 1}
	n, err := Bars.Query(conn).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, Bars.Save(ctx, conn, bar))
	require.NotNil(t, bar.ID)
	require.NotNil(t, bar.CreatedAt)
	visible, all := counts()
	assert.Equal(t, uint64(1), visible)
	assert.Equal(t, uint64(1), all)

	require.NoError(t, Bars.SoftDelete(ctx, conn, bar))
	assert.True(t, Bars.IsSoftDeleted(bar))
	visible, all = counts()
	assert.Equal(t, uint64(0), visible)
	assert.Equal(t, uint64(1), all)

	deleted, err := Bars.Query(conn).OnlySoftDeleted().All(ctx)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, *bar.ID, *deleted[0].ID)
	assert.NotNil(t, deleted[0].DeletedAt)

	require.NoError(t, Bars.Restore(ctx, conn, bar))
	visible, all = counts()
	assert.Equal(t, uint64(1), visible)
	assert.Equal(t, uint64(1), all)

	require.NoError(t, Bars.Delete(ctx, conn, bar))
	visible, all = counts()
	assert.Equal(t, uint64(0), visible)
	assert.Equal(t, uint64(0), all)
}

func TestSQLiteQueries(t *testing.T) {
	ctx := context.Background()
	_, conn := openSQLite(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, Bars.Save(ctx, conn, &Bar{Baz: i * 10}))
	}
	baz := fluent.Where(func(b *Bar) *int { return &b.Baz })

	got, err := Bars.Query(conn).
		Filter(baz.GT(10), baz.LTE(40)).
		Sort(fluent.Desc(func(b *Bar) *int { return &b.Baz })).
		Range(1, 2).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 30, got[0].Baz)
	assert.Equal(t, 20, got[1].Baz)

	first, err := Bars.Query(conn).Filter(baz.In(50, 60)).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 50, first.Baz)

	none, err := Bars.Query(conn).Filter(baz.In()).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	found, err := Bars.Find(ctx, conn, *first.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 50, found.Baz)

	missing, err := Bars.Find(ctx, conn, 1000)
	require.NoError(t, err)
	assert.Nil(t, missing)

	first.Baz = 55
	require.NoError(t, Bars.Save(ctx, conn, first))
	n, err := Bars.Query(conn).Filter(baz.EQ(55)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSQLiteTransaction(t *testing.T) {
	ctx := context.Background()
	_, conn := openSQLite(t)
	boom := errors.New("boom")
	err := fluent.Transaction(ctx, conn, func(ctx context.Context, tx fluent.Connection) error {
		if err := Bars.Save(ctx, tx, &Bar{Baz: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	n, err := Bars.Query(conn).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rolled back")

	err = fluent.Transaction(ctx, conn, func(ctx context.Context, tx fluent.Connection) error {
		return Bars.Save(ctx, tx, &Bar{Baz: 1})
	})
	require.NoError(t, err)
	n, err = Bars.Query(conn).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSQLiteCachedFindAfterRollback(t *testing.T) {
	ctx := context.Background()
	_, conn := openSQLite(t)
	cache := fluent.NewMemoryCache()
	bars := fluent.MustNewEntity(func(b *Bar) **int64 { return &b.ID }, fluent.WithCache(cache, 0))

	bar := &Bar{Baz: 1}
	require.NoError(t, bars.Save(ctx, conn, bar))
	cached, err := bars.Find(ctx, conn, *bar.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cached.Baz)
	require.Equal(t, 1, cache.Len())

	boom := errors.New("boom")
	err = fluent.Transaction(ctx, conn, func(ctx context.Context, tx fluent.Connection) error {
		bar.Baz = 2
		if err := bars.Save(ctx, tx, bar); err != nil {
			return err
		}
		got, err := bars.Find(ctx, tx, *bar.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 2, got.Baz, "reads inside the transaction see its writes")
		assert.Zero(t, cache.Len(), "reads inside the transaction are not cached")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := bars.Find(ctx, conn, *bar.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Baz)
	n, err := bars.Query(conn).Filter(fluent.Where(func(b *Bar) *int { return &b.Baz }).EQ(1)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSQLiteConstraintError(t *testing.T) {
	ctx := context.Background()
	_, conn := openSQLite(t)
	require.NoError(t, Bars.Save(ctx, conn, &Bar{Baz: 1}))
	err := Bars.Save(ctx, conn, &Bar{Baz: 1})
	require.Error(t, err)
	assert.True(t, sql.IsUniqueConstraintError(err))
	assert.True(t, sql.IsConstraintError(err))
	assert.False(t, sql.IsForeignKeyConstraintError(err))
}
