package fluent

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Galaxy is the model used throughout the package tests. Its hooks are
// driven by the hookScript carried in the context.
type Galaxy struct {
	Schema
	ID        *int64
	Name      string
	Stars     int
	CreatedAt *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

func (g *Galaxy) TimestampFields() (createdAt, updatedAt **time.Time) {
	return &g.CreatedAt, &g.UpdatedAt
}

func (g *Galaxy) DeletedAtField() **time.Time { return &g.DeletedAt }

func (g *Galaxy) WillCreate(ctx context.Context, _ Connection) error {
	if g.Name == "" {
		g.Name = "unnamed"
	}
	return hooks(ctx).run("WillCreate", g)
}

func (g *Galaxy) DidCreate(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("DidCreate", g)
}

func (g *Galaxy) WillRead(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("WillRead", g)
}

func (g *Galaxy) WillUpdate(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("WillUpdate", g)
}

func (g *Galaxy) DidUpdate(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("DidUpdate", g)
}

func (g *Galaxy) WillDelete(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("WillDelete", g)
}

func (g *Galaxy) DidDelete(ctx context.Context, _ Connection) error {
	return hooks(ctx).run("DidDelete", g)
}

// hookScript records hook calls and fails the named hooks.
type hookScript struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	// failOn restricts failures to galaxies with this name.
	failOn string
}

type hookKey struct{}

func withHooks(ctx context.Context, s *hookScript) context.Context {
	return context.WithValue(ctx, hookKey{}, s)
}

func hooks(ctx context.Context) *hookScript {
	s, _ := ctx.Value(hookKey{}).(*hookScript)
	return s
}

func (s *hookScript) run(name string, g *Galaxy) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	if s.failOn != "" && g.Name != s.failOn {
		return nil
	}
	return s.fail[name]
}

func (s *hookScript) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// fakeConn records executed queries and answers them with scripted rows.
// Without a script, creates yield sequential identifiers.
type fakeConn struct {
	mu      sync.Mutex
	queries []*Query
	rows    func(*Query) [][]any
	err     error
	nextID  int64
}

func (c *fakeConn) Dialect() string { return "fake" }

func (c *fakeConn) Execute(_ context.Context, q *Query, onRow func(Row) error) error {
	c.mu.Lock()
	c.queries = append(c.queries, q.clone())
	err, script := c.err, c.rows
	var rows [][]any
	switch {
	case err != nil:
	case script != nil:
		rows = script(q)
	case q.Action == ActionCreate:
		c.nextID++
		rows = [][]any{{c.nextID}}
	case q.Action == ActionCount:
		rows = [][]any{{int64(0)}}
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := onRow(fakeRow(r)); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeConn) executed() []*Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Query(nil), c.queries...)
}

// fakeRow scans in-memory values, allocating pointer destinations.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("fake: %d values for %d destinations", len(r), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if r[i] == nil {
			dv.SetZero()
			continue
		}
		sv := reflect.ValueOf(r[i])
		if dv.Kind() == reflect.Pointer && sv.Kind() != reflect.Pointer {
			p := reflect.New(dv.Type().Elem())
			p.Elem().Set(sv.Convert(dv.Type().Elem()))
			dv.Set(p)
			continue
		}
		if !sv.CanConvert(dv.Type()) {
			return fmt.Errorf("fake: cannot scan %T into %s", r[i], dv.Type())
		}
		dv.Set(sv.Convert(dv.Type()))
	}
	return nil
}

// galaxyRow returns a row in the column order of Galaxy.
func galaxyRow(id int64, name string, stars int) []any {
	return []any{id, name, stars, nil, nil, nil}
}

// fakeDB is a Database handing out one shared fakeConn.
type fakeDB struct {
	conn       *fakeConn
	connectErr error
	releaseErr error
	mu         sync.Mutex
	connects   int
	releases   int
	closed     bool
}

func (d *fakeDB) Connect(context.Context) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	d.connects++
	return d.conn, nil
}

func (d *fakeDB) Release(Connection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releases++
	return d.releaseErr
}

func (d *fakeDB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func newGalaxies(opts ...EntityOption) *Entity[Galaxy, int64] {
	return MustNewEntity(func(g *Galaxy) **int64 { return &g.ID }, opts...)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
