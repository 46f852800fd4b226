package gencache

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/gencache/codec"
)

// Outcome is the settled result of one generation: a value or one of the
// three error kinds (CacheError, GeneratorError, PanicError).
type Outcome[V any] struct {
	Value V
	Err   error
}

// Handle is a single-assignment cell observing one generation. It settles
// exactly once and every read after that returns the same outcome. Handles
// are cheap, safe for concurrent use, and may be shared freely; dropping
// every reference does not stop an in-flight generation.
type Handle[V any] struct {
	t        *task
	cod      codec.Codec[V]
	fallible bool

	once sync.Once
	out  Outcome[V]
}

func newHandle[V any](t *task, cod codec.Codec[V], fallible bool) *Handle[V] {
	return &Handle[V]{t: t, cod: cod, fallible: fallible}
}

// Done returns a channel closed when the handle settles.
func (h *Handle[V]) Done() <-chan struct{} { return h.t.done }

// Poll returns the outcome if the handle has settled, without blocking.
func (h *Handle[V]) Poll() (Outcome[V], bool) {
	select {
	case <-h.t.done:
		return h.resolve(), true
	default:
		return Outcome[V]{}, false
	}
}

// Wait blocks until the handle settles or ctx is done. A ctx error is
// returned verbatim; it says nothing about the generation, which keeps
// running and can be observed again.
func (h *Handle[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-h.t.done:
		out := h.resolve()
		return out.Value, out.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// MustGet is Wait for callers that treat any failure as fatal.
func (h *Handle[V]) MustGet(ctx context.Context) V {
	v, err := h.Wait(ctx)
	if err != nil {
		panic(fmt.Sprintf("gencache: MustGet: %v", err))
	}
	return v
}

// resolve decodes the settled payload exactly once. Decoding is deferred
// to the first observer so unread handles cost nothing beyond the bytes.
func (h *Handle[V]) resolve() Outcome[V] {
	h.once.Do(func() {
		payload, err := h.t.outcome()
		if err != nil {
			h.out = Outcome[V]{Err: err}
			return
		}
		if h.fallible {
			h.out = decodeFallible[V](h.cod, payload)
			return
		}
		v, err := h.cod.Decode(payload)
		if err != nil {
			h.out = Outcome[V]{Err: &CacheError{Op: "decode", Err: err}}
			return
		}
		h.out = Outcome[V]{Value: v}
	})
	return h.out
}
