// Package dataloader provides helpers for batch loading models, to be
// used with any DataLoader implementation such as
// github.com/graph-gophers/dataloader/v7 or github.com/vikstrous/dataloadgen.
//
// Entities provide a ready batch function:
//
//	batch := Users.BatchFunc(conn)
//	users, errs := batch(ctx, []int64{3, 1, 2})
//
// Custom batch functions reorder their results with OrderByKeys:
//
//	func postsByID(ctx context.Context, ids []int64) ([]*Post, []error) {
//		posts, err := Posts.Query(conn).Filter(postID.In(ids...)).All(ctx)
//		if err != nil {
//			return nil, []error{err}
//		}
//		return dataloader.OrderByKeys(ids, posts, func(p *Post) int64 { return *p.ID })
//	}
package dataloader

import (
	"context"
	"errors"
)

// ErrNotFound is returned for keys without a value in a batch result.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads a batch of values by their keys. Both results have the
// length and order of keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, []error)

// OrderByKeys reorders values to match the order of keys. Keys without a
// value yield the zero value and ErrNotFound.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError is like OrderByKeys, without errors for missing keys.
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by key, for one-to-many loads:
//
//	posts, _ := Posts.Query(conn).Filter(postAuthor.In(authorIDs...)).All(ctx)
//	byAuthor := dataloader.GroupByKey(posts, func(p *Post) int64 { return p.AuthorID })
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the groups in the order of keys.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

type ctxKey struct{}

// WithLoaders injects request-scoped loaders into the context.
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For extracts the loaders injected by WithLoaders, or the zero value.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
