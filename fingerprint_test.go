package gencache

import (
	"strings"
	"testing"
)

func TestComputeDeterministicAcrossMapOrder(t *testing.T) {
	build := func(reverse bool) map[string]int {
		m := make(map[string]int)
		keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
		if reverse {
			for i := len(keys) - 1; i >= 0; i-- {
				m[keys[i]] = i
			}
		} else {
			for i, k := range keys {
				m[k] = i
			}
		}
		return m
	}

	want, err := Compute("ns", build(false))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for i := 0; i < 32; i++ {
		got, err := Compute("ns", build(i%2 == 1))
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if got != want {
			t.Fatalf("fingerprint changed across construction order: %s vs %s", got.Hex(), want.Hex())
		}
	}
}

func TestComputeStructKeys(t *testing.T) {
	type req struct {
		User string
		Page int
	}
	a, err := Compute("ns", req{User: "u1", Page: 2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute("ns", req{User: "u1", Page: 2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	c, err := Compute("ns", req{User: "u1", Page: 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Fatal("equal keys produced different fingerprints")
	}
	if a.Digest == c.Digest {
		t.Fatal("distinct keys produced the same digest")
	}
}

func TestComputeNamespaceScopesIdentity(t *testing.T) {
	a, err := Compute("users", 7)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute("orders", 7)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a == b {
		t.Fatal("namespaces must separate identical keys")
	}
	// the digest covers the key only; the namespace travels beside it
	if a.Digest != b.Digest {
		t.Fatal("same key hashed differently across namespaces")
	}
}

func TestComputeRejectsUnserializableKeys(t *testing.T) {
	_, err := Compute("ns", make(chan int))
	if !IsCacheError(err) {
		t.Fatalf("err = %v, want CacheError", err)
	}
}

func TestFingerprintRendering(t *testing.T) {
	fp, err := Compute("sessions", "k")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(fp.Hex()) != 64 {
		t.Fatalf("Hex length = %d, want 64", len(fp.Hex()))
	}
	s := fp.String()
	if !strings.HasPrefix(s, "sessions:") {
		t.Fatalf("String = %q, want namespace prefix", s)
	}
	if len(s) != len("sessions:")+16 {
		t.Fatalf("String = %q, want a 16-char short digest", s)
	}
}
