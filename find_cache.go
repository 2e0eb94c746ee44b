package fluent

import (
	"bytes"
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

func (e *Entity[M, ID]) cacheKey(id ID) string {
	return CacheKey{Entity: e.name, Operation: "find", ID: id}.String()
}

// findCached serves Find from the entity cache. Lookups narrowed by the
// query policy bypass the cache. Concurrent misses for the same identifier
// share one query, run on the connection of the first caller and detached
// from its cancellation.
func (e *Entity[M, ID]) findCached(ctx context.Context, conn Connection, id ID) (*M, error) {
	b := e.Query(conn).filter(e.idFilter(id))
	if e.policy != nil {
		q, err := b.Build(ActionRead)
		if err != nil {
			return nil, err
		}
		if err := e.policy.EvalQuery(ctx, q); err != nil {
			return nil, err
		}
		if len(q.Filters) != 1 {
			return b.First(ctx)
		}
	}
	key := e.cacheKey(id)
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.WarnContext(ctx, "fluent: reading cache", "entity", e.name, "key", key, "error", err)
		data = nil
	}
	if data == nil {
		fillCtx := context.WithoutCancel(ctx)
		ch := e.group.DoChan(key, func() (any, error) {
			m, err := b.first(fillCtx, false)
			if err != nil || m == nil {
				return nil, err
			}
			data, err := encodeModel(m)
			if err != nil {
				return nil, err
			}
			if err := e.cache.Set(fillCtx, key, data, e.cacheTTL); err != nil {
				e.logger.WarnContext(fillCtx, "fluent: writing cache", "entity", e.name, "key", key, "error", err)
			}
			return data, nil
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Val == nil {
			return nil, nil
		}
		data = res.Val.([]byte)
	}
	m := new(M)
	if err := decodeModel(data, m); err != nil {
		return nil, err
	}
	if err := e.willRead(ctx, conn, m); err != nil {
		return nil, err
	}
	return m, nil
}

// invalidate drops the cached lookup of id. Inside a transaction the
// lookup is dropped again once the transaction ends, so reads made on
// other connections before the commit do not outlive it.
func (e *Entity[M, ID]) invalidate(ctx context.Context, conn Connection, id ID) {
	if e.cache == nil {
		return
	}
	key := e.cacheKey(id)
	e.uncache(ctx, key)
	if ts, ok := conn.(TransactionScoped); ok && ts.InTx() {
		ctx := context.WithoutCancel(ctx)
		ts.AfterTransaction(func() { e.uncache(ctx, key) })
	}
}

func (e *Entity[M, ID]) uncache(ctx context.Context, key string) {
	if err := e.cache.Delete(ctx, key); err != nil {
		e.logger.WarnContext(ctx, "fluent: invalidating cache", "entity", e.name, "key", key, "error", err)
	}
}

func encodeModel(m any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("fluent")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeModel(data []byte, m any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("fluent")
	return dec.Decode(m)
}
