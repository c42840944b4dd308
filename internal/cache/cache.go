// Package cache implements the read-through cache used for point lookups.
//
// Entries live in namespaces, one per lookup kind. A write that may change
// the underlying data purges the whole namespace instead of tracking
// individual keys; this trades hit rate for simple, correct invalidation.
//
// Every namespace carries a generation number that is bumped on purge. A
// reader records the generation it observed on a miss and the value it then
// loaded from the store is only kept if the generation is unchanged, so a
// purge that lands between the store read and the populate cannot be undone
// by the slower reader.
package cache

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Store is a namespaced byte cache with generation-guarded writes.
type Store interface {
	// Get returns the cached value for key and the current generation of ns.
	Get(ctx context.Context, ns, key string) (val []byte, gen uint64, ok bool, err error)
	// Put stores val under key only if ns is still at generation gen.
	Put(ctx context.Context, ns, key string, val []byte, gen uint64) (bool, error)
	// Purge drops every entry of ns and advances its generation.
	Purge(ctx context.Context, ns string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Codec converts namespace values to and from their JSON form.
type Codec[V any] struct {
	Encode func(e *jx.Encoder, v V)
	Decode func(d *jx.Decoder) (V, error)
}

// Namespace is a typed view over one namespace of a Store.
type Namespace[V any] struct {
	store Store
	name  string
	codec Codec[V]
}

// NewNamespace returns a Namespace named name backed by store.
func NewNamespace[V any](store Store, name string, codec Codec[V]) *Namespace[V] {
	return &Namespace[V]{
		store: store,
		name:  name,
		codec: codec,
	}
}

// Name returns the namespace name.
func (n *Namespace[V]) Name() string {
	return n.name
}

// Load returns the cached value for key, or calls load on a miss and caches
// its result. Errors from load are returned untouched and never cached.
// Cache backend failures degrade to a direct load.
func (n *Namespace[V]) Load(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	lg := zctx.From(ctx)

	raw, gen, ok, err := n.store.Get(ctx, n.name, key)
	if err != nil {
		lg.Warn("Cache get failed", zap.String("namespace", n.name), zap.Error(err))
		return load(ctx)
	}
	if ok {
		v, err := n.codec.Decode(jx.DecodeBytes(raw))
		if err == nil {
			return v, nil
		}
		lg.Warn("Cache entry undecodable, reloading", zap.String("namespace", n.name), zap.Error(err))
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	n.codec.Encode(e, v)

	// The encoder buffer is reused after return, the store must own its copy.
	buf := append([]byte(nil), e.Bytes()...)
	if _, err := n.store.Put(ctx, n.name, key, buf, gen); err != nil {
		lg.Warn("Cache put failed", zap.String("namespace", n.name), zap.Error(err))
	}
	return v, nil
}

// Invalidate purges the namespace.
func (n *Namespace[V]) Invalidate(ctx context.Context) error {
	if err := n.store.Purge(ctx, n.name); err != nil {
		return errors.Wrapf(err, "purge namespace %s", n.name)
	}
	return nil
}
