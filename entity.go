package fluent

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entity describes how a model type M with identifier type ID is stored.
// It is built once, usually as a package-level variable, and is safe for
// concurrent use:
//
//	var Galaxies = fluent.MustNewEntity(func(g *Galaxy) **int64 { return &g.ID })
type Entity[M any, ID Identifier] struct {
	typ    reflect.Type
	name   string
	fields *fieldMap
	id     column
	idKey  func(*M) **ID

	createdAt *timeColumn[M]
	updatedAt *timeColumn[M]
	deletedAt *timeColumn[M]

	policy   Policy
	cache    Cache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

type timeColumn[M any] struct {
	column
	key func(*M) **time.Time
}

// EntityOption configures an Entity.
type EntityOption func(*entityOptions)

type entityOptions struct {
	name      string
	createdAt any
	updatedAt any
	deletedAt any
	policy    Policy
	cache     Cache
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// WithName overrides the entity name.
func WithName(name string) EntityOption {
	return func(o *entityOptions) {
		o.name = name
	}
}

// WithTimestamps declares the creation and update timestamp fields.
// Either key path may be nil.
func WithTimestamps[M any](createdAt, updatedAt func(*M) **time.Time) EntityOption {
	return func(o *entityOptions) {
		if createdAt != nil {
			o.createdAt = createdAt
		}
		if updatedAt != nil {
			o.updatedAt = updatedAt
		}
	}
}

// WithSoftDelete declares the deletion marker field.
func WithSoftDelete[M any](deletedAt func(*M) **time.Time) EntityOption {
	return func(o *entityOptions) {
		o.deletedAt = deletedAt
	}
}

// WithPolicy sets the privacy policy evaluated before every query and mutation.
func WithPolicy(p Policy) EntityOption {
	return func(o *entityOptions) {
		o.policy = p
	}
}

// WithCache caches Find lookups in c for ttl. A zero ttl never expires.
func WithCache(c Cache, ttl time.Duration) EntityOption {
	return func(o *entityOptions) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) EntityOption {
	return func(o *entityOptions) {
		o.logger = l
	}
}

// WithClock sets the time source for timestamps and deletion markers.
func WithClock(now func() time.Time) EntityOption {
	return func(o *entityOptions) {
		o.now = now
	}
}

// NewEntity returns the descriptor of model M, identified by the field
// selected by idKey. *M must implement Model.
//
// Timestamp and deletion marker fields are taken from the options, or from
// the Timestamped and SoftDeletable interfaces when *M implements them.
func NewEntity[M any, ID Identifier](idKey func(*M) **ID, opts ...EntityOption) (*Entity[M, ID], error) {
	t := reflect.TypeFor[M]()
	if _, ok := any(new(M)).(Model); !ok {
		return nil, fmt.Errorf("fluent: *%s does not implement fluent.Model (embed fluent.Schema)", t)
	}
	id, err := resolve(idKey)
	if err != nil {
		return nil, err
	}
	o := entityOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Entity[M, ID]{
		typ:      t,
		name:     o.name,
		fields:   fieldsOf(t),
		id:       id,
		idKey:    idKey,
		policy:   o.policy,
		cache:    o.cache,
		cacheTTL: o.cacheTTL,
		logger:   o.logger,
		now:      o.now,
	}
	if e.name == "" {
		e.name = defaultName[M](t)
	}
	var m M
	if ts, ok := any(&m).(Timestamped); ok {
		// Either field may be nil.
		c, u := ts.TimestampFields()
		if o.createdAt == nil && c != nil {
			o.createdAt = func(p *M) **time.Time { c, _ := any(p).(Timestamped).TimestampFields(); return c }
		}
		if o.updatedAt == nil && u != nil {
			o.updatedAt = func(p *M) **time.Time { _, u := any(p).(Timestamped).TimestampFields(); return u }
		}
	}
	if _, ok := any(&m).(SoftDeletable); ok && o.deletedAt == nil {
		o.deletedAt = func(p *M) **time.Time { return any(p).(SoftDeletable).DeletedAtField() }
	}
	if e.createdAt, err = timeColumnOf[M](o.createdAt); err != nil {
		return nil, err
	}
	if e.updatedAt, err = timeColumnOf[M](o.updatedAt); err != nil {
		return nil, err
	}
	if e.deletedAt, err = timeColumnOf[M](o.deletedAt); err != nil {
		return nil, err
	}
	return e, nil
}

// MustNewEntity is like NewEntity but panics on error.
func MustNewEntity[M any, ID Identifier](idKey func(*M) **ID, opts ...EntityOption) *Entity[M, ID] {
	e, err := NewEntity(idKey, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func defaultName[M any](t reflect.Type) string {
	if n, ok := any(new(M)).(EntityNamer); ok {
		return n.EntityName()
	}
	return EntityName(t.Name())
}

func timeColumnOf[M any](kp any) (*timeColumn[M], error) {
	if kp == nil {
		return nil, nil
	}
	key, ok := kp.(func(*M) **time.Time)
	if !ok {
		return nil, NewError(InvalidKeyPath,
			fmt.Sprintf("timestamp key path %T does not select a field of %s", kp, reflect.TypeFor[M]()))
	}
	c, err := resolve(key)
	if err != nil {
		return nil, err
	}
	return &timeColumn[M]{column: c, key: key}, nil
}

// Name returns the entity name, e.g. "galaxies".
func (e *Entity[M, ID]) Name() string { return e.name }

// IDField returns the identifier column.
func (e *Entity[M, ID]) IDField() string { return e.id.name }

// Fields returns all column names in declaration order.
func (e *Entity[M, ID]) Fields() []string { return e.fields.names() }

// SoftDeletable reports whether the entity has a deletion marker.
func (e *Entity[M, ID]) SoftDeletable() bool { return e.deletedAt != nil }

// ID returns the identifier of m, and false when it is unset.
func (e *Entity[M, ID]) ID(m *M) (ID, bool) {
	p := *e.idKey(m)
	if p == nil {
		var zero ID
		return zero, false
	}
	return *p, true
}

// SetID sets the identifier of m.
func (e *Entity[M, ID]) SetID(m *M, id ID) {
	*e.idKey(m) = &id
}

// RequireID returns the identifier of m or fails with idRequired.
func (e *Entity[M, ID]) RequireID(m *M) (ID, error) {
	id, ok := e.ID(m)
	if !ok {
		return id, errIDRequired(e.name)
	}
	return id, nil
}

// The default-database registry maps model types to their default pool.
// It is meant to be written once during initialization and read afterwards;
// the lock only keeps a late writer from corrupting the map.
var defaults = struct {
	sync.RWMutex
	m map[reflect.Type]DatabaseRef
}{m: make(map[reflect.Type]DatabaseRef)}

// DefaultDatabase returns the default database registered for M.
func (e *Entity[M, ID]) DefaultDatabase() (DatabaseRef, bool) {
	defaults.RLock()
	defer defaults.RUnlock()
	ref, ok := defaults.m[e.typ]
	return ref, ok
}

// SetDefaultDatabase registers ref as the default database of M.
// A nil ref removes the registration.
func (e *Entity[M, ID]) SetDefaultDatabase(ref DatabaseRef) {
	defaults.Lock()
	defer defaults.Unlock()
	if ref == nil {
		delete(defaults.m, e.typ)
		return
	}
	defaults.m[e.typ] = ref
}

// RequireDefaultDatabase returns the default database of M or fails with
// noDefaultDatabase.
func (e *Entity[M, ID]) RequireDefaultDatabase() (DatabaseRef, error) {
	ref, ok := e.DefaultDatabase()
	if !ok {
		return nil, errNoDefaultDatabase(e.typ.String())
	}
	return ref, nil
}

// model returns the hooks of m.
func (e *Entity[M, ID]) model(m *M) Model {
	return any(m).(Model)
}

// abort logs a hook failure and returns it unchanged.
func (e *Entity[M, ID]) abort(ctx context.Context, hook string, err error) error {
	e.logger.DebugContext(ctx, "fluent: hook aborted operation",
		"entity", e.name, "hook", hook, "error", err)
	return err
}

func (e *Entity[M, ID]) setTime(tc *timeColumn[M], m *M, t *time.Time) {
	if tc != nil {
		*tc.key(m) = t
	}
}
