package gencache

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/unkn0wn-root/gencache/codec"
)

// memoKey identifies a typed handle in the memo table. The value type and
// caching policy are part of the key: the same fingerprint requested at
// two different types (or with and without declared errors) must never
// share a decoded handle.
type memoKey struct {
	tag      string
	fallible bool
	ns       string
	digest   [32]byte
}

// Cache is the hierarchical entry point. It fronts one or more servers
// with an in-process memo of typed handles; below the memo, each server
// connection runs its own protocol engine.
//
// Requests are delegated to the first provider only. Later providers are
// carried for topologies that grow into routing but receive no traffic
// from this implementation, and their engines exist so a future router
// can dispatch to them without rewiring.
type Cache struct {
	engines []*engine
	memo    *xsync.MapOf[memoKey, any]
	skip    bool
	log     Logger
	events  Events

	mu     sync.Mutex
	closed bool
}

// primary returns the engine all requests delegate to.
func (c *Cache) primary() *engine { return c.engines[0] }

// lookup drives one byte-level generation and wraps it in a typed handle,
// memoizing the handle unless the cache was built with SkipMemory.
//
// The memo is insert-only from the caller's point of view: a handle, once
// stored, is returned to every later caller of the same key, type and
// policy. Failed generations are the exception; the engine deregisters
// them so the next call retries, and the memo entry is dropped with it.
func lookup[V any](c *Cache, mk memoKey, cod codec.Codec[V], run runner) (*Handle[V], error) {
	if c.isClosed() {
		return nil, &CacheError{Op: "generate", Err: ErrClosed}
	}

	if !c.skip {
		if got, ok := c.memo.Load(mk); ok {
			h := got.(*Handle[V])
			if h.retryable() {
				c.memo.Delete(mk)
			} else {
				c.events.MemoHit(mk.ns, mk.digest)
				return h, nil
			}
		}
	}

	t := c.primary().generate(mk.ns, mk.digest, run)
	h := newHandle[V](t, cod, mk.fallible)

	if !c.skip {
		if actual, loaded := c.memo.LoadOrStore(mk, h); loaded {
			prior := actual.(*Handle[V])
			if !prior.retryable() {
				return prior, nil
			}
			c.memo.Store(mk, h)
		}
	}
	return h, nil
}

// retryable reports whether the handle settled with a non-cacheable
// failure (CacheError or PanicError). Such handles must not pin the memo
// slot or the key could never be generated again in this process.
func (h *Handle[V]) retryable() bool {
	select {
	case <-h.t.done:
	default:
		return false
	}
	_, err := h.t.outcome()
	if err == nil {
		return false
	}
	return IsCacheError(err) || IsPanicError(err)
}

func (c *Cache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts down every engine and its provider connection. In-flight
// generations are cancelled; their handles settle with a CacheError.
// Close blocks until engines drain or ctx expires.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var first error
	for _, e := range c.engines {
		if err := e.close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
