package fluent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := fixedNow
	c.now = func() time.Time { return now }

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "galaxies:find:1", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "galaxies:find:2", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "stars:find:1", []byte("c"), 0))
	v, err = c.Get(ctx, "galaxies:find:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	now = now.Add(time.Minute)
	v, err = c.Get(ctx, "galaxies:find:1")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.DeletePrefix(ctx, "galaxies:"))
	assert.Equal(t, 1, c.Len())
	require.NoError(t, c.Delete(ctx, "stars:find:1"))
	assert.Zero(t, c.Len())

	require.NoError(t, c.Set(ctx, "x", []byte("x"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "galaxies:find:42", CacheKey{Entity: "galaxies", Operation: "find", ID: int64(42)}.String())
}

func TestFindCached(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, 0), WithClock(fixedClock))
	ctx := context.Background()
	conn := &fakeConn{rows: func(q *Query) [][]any {
		if q.Action == ActionRead {
			return [][]any{galaxyRow(1, "Milky Way", 100)}
		}
		return nil
	}}

	g, err := galaxies.Find(ctx, conn, 1)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, 1, cache.Len())

	s := &hookScript{}
	again, err := galaxies.Find(withHooks(ctx, s), conn, 1)
	require.NoError(t, err)
	assert.Equal(t, g.Name, again.Name)
	assert.Equal(t, *g.ID, *again.ID)
	assert.NotSame(t, g, again)
	assert.Len(t, conn.executed(), 1, "served from the cache")
	assert.Equal(t, []string{"WillRead"}, s.called(), "cached models still run WillRead")

	again.Stars = 5
	require.NoError(t, galaxies.Update(ctx, conn, again))
	assert.Zero(t, cache.Len(), "updates invalidate the lookup")

	_, err = galaxies.Find(ctx, conn, 1)
	require.NoError(t, err)
	require.NoError(t, galaxies.Delete(ctx, conn, again))
	assert.Zero(t, cache.Len(), "deletes invalidate the lookup")
}

func TestFindCachedMiss(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, time.Minute))
	conn := &fakeConn{rows: func(*Query) [][]any { return nil }}
	g, err := galaxies.Find(context.Background(), conn, 9)
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.Zero(t, cache.Len(), "misses are not cached")
}

func TestFindCachedSingleflight(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, 0))
	var reads atomic.Int32
	release := make(chan struct{})
	conn := &fakeConn{rows: func(*Query) [][]any {
		reads.Add(1)
		<-release
		return [][]any{galaxyRow(1, "Milky Way", 100)}
	}}
	// The script blocks under the connection lock; give every caller its own.
	conns := make([]*fakeConn, 8)
	for i := range conns {
		conns[i] = &fakeConn{rows: conn.rows}
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := galaxies.Find(context.Background(), c, 1)
			assert.NoError(t, err)
			assert.NotNil(t, g)
		}()
	}
	require.Eventually(t, func() bool { return reads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, reads.Load(), int32(8))
	assert.Equal(t, 1, cache.Len())
}

// narrowingPolicy adds a filter to every query.
type narrowingPolicy struct{}

func (narrowingPolicy) EvalQuery(_ context.Context, q *Query) error {
	q.Where(Filter{Field: "stars", Method: MethodGT, Value: 0})
	return nil
}

func (narrowingPolicy) EvalMutation(context.Context, Mutation) error { return nil }

func TestFindCachedBypassedByPolicy(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, 0), WithPolicy(narrowingPolicy{}))
	conn := &fakeConn{rows: func(*Query) [][]any { return [][]any{galaxyRow(1, "a", 1)} }}
	for range 2 {
		g, err := galaxies.Find(context.Background(), conn, 1)
		require.NoError(t, err)
		require.NotNil(t, g)
	}
	assert.Zero(t, cache.Len())
	qs := conn.executed()
	require.Len(t, qs, 2)
	assert.Len(t, qs[0].Filters, 2)
}

// txConn is a fakeConn inside a transaction that ends when end is called.
type txConn struct {
	*fakeConn
	done []func()
}

func (c *txConn) InTx() bool { return true }

func (c *txConn) AfterTransaction(fn func()) { c.done = append(c.done, fn) }

func (c *txConn) end() {
	for _, fn := range c.done {
		fn()
	}
}

func TestFindCachedInTransaction(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, 0))
	ctx := context.Background()
	conn := &fakeConn{rows: func(*Query) [][]any { return [][]any{galaxyRow(1, "Milky Way", 100)} }}
	tx := &txConn{fakeConn: &fakeConn{rows: func(*Query) [][]any { return [][]any{galaxyRow(1, "Andromeda", 5)} }}}

	_, err := galaxies.Find(ctx, conn, 1)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	g, err := galaxies.Find(ctx, tx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Andromeda", g.Name, "transactions read past the cache")
	assert.Len(t, tx.executed(), 1)

	require.NoError(t, galaxies.Update(ctx, tx, g))
	assert.Zero(t, cache.Len())

	// A read on another connection before the transaction ends.
	_, err = galaxies.Find(ctx, conn, 1)
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	tx.end()
	assert.Zero(t, cache.Len(), "lookups mutated in a transaction are dropped when it ends")
}

// gatedConn holds reads until release is closed and fails them if their
// context is done by then.
type gatedConn struct {
	*fakeConn
	started chan struct{}
	release chan struct{}
}

func (c *gatedConn) Execute(ctx context.Context, q *Query, onRow func(Row) error) error {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-c.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeConn.Execute(ctx, q, onRow)
}

func TestFindCachedCancelledCaller(t *testing.T) {
	cache := NewMemoryCache()
	galaxies := newGalaxies(WithCache(cache, 0))
	gated := &gatedConn{
		fakeConn: &fakeConn{rows: func(*Query) [][]any { return [][]any{galaxyRow(1, "Milky Way", 100)} }},
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := galaxies.Find(ctx, gated, 1)
		first <- err
	}()
	<-gated.started
	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	// The waiter's own connection has no rows; it is served by the shared fill.
	empty := &fakeConn{rows: func(*Query) [][]any { return nil }}
	second := make(chan *Galaxy, 1)
	go func() {
		g, err := galaxies.Find(context.Background(), empty, 1)
		assert.NoError(t, err)
		second <- g
	}()
	time.Sleep(10 * time.Millisecond)
	close(gated.release)
	g := <-second
	require.NotNil(t, g)
	assert.Equal(t, "Milky Way", g.Name)
	assert.Equal(t, 1, cache.Len())
	assert.Empty(t, empty.executed())
}
