package gencache

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/unkn0wn-root/gencache/codec"
)

// typeTag names V for the memo table. Two requests for the same key at
// different Go types get distinct handles.
func typeTag[V any]() string {
	return reflect.TypeOf((*V)(nil)).Elem().String()
}

// Generate resolves key in namespace, running fn at most once across all
// processes sharing the server when no value exists yet. fn cannot fail:
// whatever it returns is cached. If it panics, nothing is cached and the
// handle settles with a PanicError.
//
// Values are serialized with codec.JSON. Use a Cacheable to bind a
// different codec.
func Generate[K, V any](c *Cache, namespace string, key K, fn func(context.Context, K) V) (*Handle[V], error) {
	cb := NewCacheable[K, V](namespace, fn)
	return cb.Generate(c, key)
}

// GenerateErr is Generate for fallible generators. A returned error is a
// first-class result: it is cached like a success and every observer of
// the entry, now and after restarts, sees it as a GeneratorError.
func GenerateErr[K, V any](c *Cache, namespace string, key K, fn func(context.Context, K) (V, error)) (*Handle[V], error) {
	cb := NewCacheableErr[K, V](namespace, fn)
	return cb.Generate(c, key)
}

// Cacheable binds a namespace, a payload codec and a generation function
// into a reusable description of one cacheable computation. The zero
// value is not usable; build one with NewCacheable or NewCacheableErr.
type Cacheable[K, V any] struct {
	ns       string
	cod      codec.Codec[V]
	fallible bool
	fn       func(context.Context, K) (V, error)
}

// NewCacheable describes an infallible computation: fn's result is always
// cached. Defaults to the JSON codec.
func NewCacheable[K, V any](namespace string, fn func(context.Context, K) V) Cacheable[K, V] {
	return Cacheable[K, V]{
		ns:  namespace,
		cod: codec.JSON[V]{},
		fn: func(ctx context.Context, k K) (V, error) {
			return fn(ctx, k), nil
		},
	}
}

// NewCacheableErr describes a fallible computation: a returned error is
// cached alongside successes and surfaces as a GeneratorError.
func NewCacheableErr[K, V any](namespace string, fn func(context.Context, K) (V, error)) Cacheable[K, V] {
	return Cacheable[K, V]{ns: namespace, cod: codec.JSON[V]{}, fallible: true, fn: fn}
}

// WithCodec returns a copy bound to cod. The codec must stay stable for
// the life of the namespace: payloads are written once and re-read by
// every process that ever asks for the key.
func (cb Cacheable[K, V]) WithCodec(cod codec.Codec[V]) Cacheable[K, V] {
	cb.cod = cod
	return cb
}

// Generate resolves key through c.
func (cb Cacheable[K, V]) Generate(c *Cache, key K) (*Handle[V], error) {
	if cb.fn == nil {
		return nil, &CacheError{Op: "generate", Err: errors.New("cacheable has no generator")}
	}
	if cb.ns == "" {
		return nil, &CacheError{Op: "generate", Err: errors.New("namespace is required")}
	}

	fp, err := Compute(cb.ns, key)
	if err != nil {
		return nil, err
	}

	mk := memoKey{
		tag:      typeTag[V](),
		fallible: cb.fallible,
		ns:       fp.Namespace,
		digest:   fp.Digest,
	}
	return lookup[V](c, mk, cb.cod, cb.runner(key))
}

// runner adapts the typed generation function into the engine's byte
// contract. Infallible values are encoded directly; fallible outcomes are
// wrapped in an envelope so a declared error survives as a payload.
func (cb Cacheable[K, V]) runner(key K) runner {
	return func(ctx context.Context) ([]byte, error) {
		v, err := cb.fn(ctx, key)
		if !cb.fallible {
			b, encErr := cb.cod.Encode(v)
			if encErr != nil {
				return nil, fmt.Errorf("encode value: %w", encErr)
			}
			return b, nil
		}
		return encodeFallible(cb.cod, v, err)
	}
}

// fallibleEnvelope is the payload layout for entries that may cache a
// declared error. The layout is wire-stable; change it only behind a new
// namespace.
type fallibleEnvelope struct {
	OK    bool   `cbor:"ok"`
	Value []byte `cbor:"value,omitempty"`
	Error string `cbor:"error,omitempty"`
}

func encodeFallible[V any](cod codec.Codec[V], v V, genErr error) ([]byte, error) {
	env := fallibleEnvelope{}
	if genErr != nil {
		env.Error = genErr.Error()
	} else {
		b, err := cod.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		env.OK = true
		env.Value = b
	}
	return cbor.Marshal(env)
}

func decodeFallible[V any](cod codec.Codec[V], payload []byte) Outcome[V] {
	var env fallibleEnvelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return Outcome[V]{Err: &CacheError{Op: "decode", Err: err}}
	}
	if !env.OK {
		return Outcome[V]{Err: &GeneratorError{Err: errors.New(env.Error)}}
	}
	v, err := cod.Decode(env.Value)
	if err != nil {
		return Outcome[V]{Err: &CacheError{Op: "decode", Err: err}}
	}
	return Outcome[V]{Value: v}
}
