package fluent

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Container holds the configured database pools by name and hands out
// connections for them.
type Container struct {
	mu     sync.RWMutex
	dbs    map[string]Database
	logger *slog.Logger
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithContainerLogger sets the container logger. The default is slog.Default().
func WithContainerLogger(l *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = l
	}
}

// NewContainer returns an empty Container.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{dbs: make(map[string]Database), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds db to c under id, replacing any pool with the same name.
func Register[D Database](c *Container, id DatabaseID[D], db D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dbs[id.Name()] = db
}

// Lookup returns the pool registered under id.
func Lookup[D Database](c *Container, id DatabaseID[D]) (D, error) {
	db, err := c.Database(id)
	if err != nil {
		var zero D
		return zero, err
	}
	d, ok := db.(D)
	if !ok {
		var zero D
		return zero, NewError(UnknownDatabase,
			fmt.Sprintf("database %q is a %T, not a %s", id.Name(), db, typeName[D]()))
	}
	return d, nil
}

// Database returns the pool registered under ref.
func (c *Container) Database(ref DatabaseRef) (Database, error) {
	c.mu.RLock()
	db, ok := c.dbs[ref.Name()]
	c.mu.RUnlock()
	if !ok {
		return nil, NewError(UnknownDatabase,
			fmt.Sprintf("no database registered as %q", ref.Name()),
			"register the pool with fluent.Register before use",
		)
	}
	return db, nil
}

// Names returns the registered pool names, sorted.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.dbs))
}

// Connect returns a connection for ref. A connection cached in ctx by
// WithConnection is returned as is; otherwise one is acquired from the
// pool. The returned release function must always be called.
func (c *Container) Connect(ctx context.Context, ref DatabaseRef) (Connection, func() error, error) {
	if conn, ok := ConnectionFromContext(ctx, ref); ok {
		return conn, func() error { return nil }, nil
	}
	db, err := c.Database(ref)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() error { return db.Release(conn) }, nil
}

// Using runs fn with a connection for ref, releasing it afterwards
// whether or not fn fails.
func (c *Container) Using(ctx context.Context, ref DatabaseRef, fn func(Connection) error) (err error) {
	conn, release, err := c.Connect(ctx, ref)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil {
			if err == nil {
				err = rerr
				return
			}
			c.logger.WarnContext(ctx, "fluent: releasing connection", "database", ref.Name(), "error", rerr)
		}
	}()
	return fn(conn)
}

// Session acquires a connection for ref and caches it in the returned
// context, so that every operation using that context shares it. Call
// the returned function at the end of the request to release it.
func (c *Container) Session(ctx context.Context, ref DatabaseRef) (context.Context, func() error, error) {
	if _, ok := ConnectionFromContext(ctx, ref); ok {
		return ctx, func() error { return nil }, nil
	}
	conn, release, err := c.Connect(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return WithConnection(ctx, ref, conn), release, nil
}

// Close closes all registered pools concurrently.
func (c *Container) Close() error {
	c.mu.Lock()
	dbs := c.dbs
	c.dbs = make(map[string]Database)
	c.mu.Unlock()
	var g errgroup.Group
	for name, db := range dbs {
		g.Go(func() error {
			if err := db.Close(); err != nil {
				return fmt.Errorf("fluent: closing database %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type connCtxKey struct{}

// WithConnection returns a context caching conn as the connection for ref.
func WithConnection(ctx context.Context, ref DatabaseRef, conn Connection) context.Context {
	prev, _ := ctx.Value(connCtxKey{}).(map[string]Connection)
	conns := make(map[string]Connection, len(prev)+1)
	maps.Copy(conns, prev)
	conns[ref.Name()] = conn
	return context.WithValue(ctx, connCtxKey{}, conns)
}

// ConnectionFromContext returns the connection cached in ctx for ref.
func ConnectionFromContext(ctx context.Context, ref DatabaseRef) (Connection, bool) {
	conns, _ := ctx.Value(connCtxKey{}).(map[string]Connection)
	conn, ok := conns[ref.Name()]
	return conn, ok
}
