package gencache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/gencache/codec"
	"github.com/unkn0wn-root/gencache/provider"
)

func TestNewValidatesOptions(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "no providers",
			opts: Options{},
			want: "at least one provider is required",
		},
		{
			name: "nil provider",
			opts: Options{Providers: []provider.Provider{nil}},
			want: "provider 0 is nil",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("New err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	fc := newFakeConn(time.Second)
	c, err := New(Options{Providers: []provider.Provider{fc}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(context.Background())

	e := c.primary()
	if e.poll != defaultPollInterval {
		t.Fatalf("poll = %v, want %v", e.poll, defaultPollInterval)
	}
	if e.hbEvery != defaultHeartbeatInterval {
		t.Fatalf("heartbeat = %v, want %v", e.hbEvery, defaultHeartbeatInterval)
	}
	if _, ok := c.log.(NopLogger); !ok {
		t.Fatalf("log = %T, want NopLogger", c.log)
	}
	if _, ok := c.events.(NopEvents); !ok {
		t.Fatalf("events = %T, want NopEvents", c.events)
	}
}

func TestCacheableValidation(t *testing.T) {
	fc := newFakeConn(time.Second)
	c := newTestCache(t, fc, nil)

	t.Run("zero value", func(t *testing.T) {
		var cb Cacheable[string, int]
		_, err := cb.Generate(c, "k")
		if !IsCacheError(err) || !strings.Contains(err.Error(), "no generator") {
			t.Fatalf("err = %v, want a no-generator CacheError", err)
		}
	})

	t.Run("empty namespace", func(t *testing.T) {
		cb := NewCacheable("", func(context.Context, string) int { return 0 })
		_, err := cb.Generate(c, "k")
		if !IsCacheError(err) || !strings.Contains(err.Error(), "namespace is required") {
			t.Fatalf("err = %v, want a namespace CacheError", err)
		}
	})
}

func TestCacheableWithCodec(t *testing.T) {
	fc := newFakeConn(time.Second)
	c := newTestCache(t, fc, nil)

	type blob struct {
		Data string `msgpack:"data"`
	}
	cb := NewCacheable("blobs", func(_ context.Context, k string) blob {
		return blob{Data: "for-" + k}
	}).WithCodec(codec.Msgpack[blob]{})

	h, err := cb.Generate(c, "k1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	v, err := h.Wait(waitCtx(t))
	if err != nil || v.Data != "for-k1" {
		t.Fatalf("Wait = (%+v, %v)", v, err)
	}

	// a second lookup through an equivalent Cacheable reuses the memo
	h2, err := cb.Generate(c, "k1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if h != h2 {
		t.Fatal("expected the memoized handle back")
	}
}
