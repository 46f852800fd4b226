package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := NewRedis(RedisOptions{Client: client, CloseClient: true})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedis(t)
	d := sha256.Sum256([]byte("k1"))

	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, "ns", d, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "ns", d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Get = %q, want %q", got, "payload")
	}
	if err := s.Delete(ctx, "ns", d); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestRedisScan(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedis(t)

	want := map[[32]byte]string{}
	for _, k := range []string{"a", "b", "c"} {
		d := sha256.Sum256([]byte(k))
		want[d] = "ns:colons" // namespaces with colons must survive the key split
		if err := s.Put(ctx, "ns:colons", d, []byte(k)); err != nil {
			t.Fatalf("Put %q: %v", k, err)
		}
	}

	got := map[[32]byte]string{}
	if err := s.Scan(ctx, func(ns string, d [32]byte) error {
		got[d] = ns
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Scan yielded %d entries, want %d", len(got), len(want))
	}
	for d, ns := range want {
		if got[d] != ns {
			t.Fatalf("Scan namespace for %x = %q, want %q", d[:4], got[d], ns)
		}
	}
}

func TestRedisCorruptValue(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)
	d := sha256.Sum256([]byte("k"))
	if err := s.Put(ctx, "ns", d, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// a foreign write into the entry keyspace is treated as corruption
	mr.Set(s.entryKey("ns", d), "junk")
	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get on foreign value: err = %v, want ErrCorrupt", err)
	}
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	open := func() *Redis {
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		s, err := NewRedis(RedisOptions{Client: client, CloseClient: true})
		if err != nil {
			t.Fatalf("NewRedis: %v", err)
		}
		return s
	}

	s1 := open()
	if err := s1.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	s2 := open()
	if err := s2.Acquire(ctx); !errors.Is(err, ErrRootLocked) {
		t.Fatalf("second Acquire: err = %v, want ErrRootLocked", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s2.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	s2.Close()
}
