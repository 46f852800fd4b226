package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name string         `json:"name" msgpack:"name"`
	N    int            `json:"n" msgpack:"n"`
	Tags map[string]int `json:"tags" msgpack:"tags"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V, eq func(a, b V) bool) {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !eq(got, v) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
	}
}

func sampleEq(a, b sample) bool {
	if a.Name != b.Name || a.N != b.N || len(a.Tags) != len(b.Tags) {
		return false
	}
	for k, v := range b.Tags {
		if a.Tags[k] != v {
			return false
		}
	}
	return true
}

func TestRoundTrips(t *testing.T) {
	v := sample{Name: "n", N: 42, Tags: map[string]int{"a": 1, "b": 2}}

	t.Run("json", func(t *testing.T) { roundTrip[sample](t, JSON[sample]{}, v, sampleEq) })
	t.Run("msgpack", func(t *testing.T) { roundTrip[sample](t, Msgpack[sample]{}, v, sampleEq) })
	t.Run("cbor", func(t *testing.T) { roundTrip[sample](t, MustCBOR[sample](false), v, sampleEq) })
	t.Run("cbor deterministic", func(t *testing.T) { roundTrip[sample](t, MustCBOR[sample](true), v, sampleEq) })
	t.Run("string", func(t *testing.T) {
		roundTrip[string](t, String{}, "hello", func(a, b string) bool { return a == b })
	})
	t.Run("bytes", func(t *testing.T) {
		roundTrip[[]byte](t, Bytes{}, []byte{1, 2, 3}, func(a, b []byte) bool { return bytes.Equal(a, b) })
	})
}

func TestCBORDeterministicStableOutput(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	v := map[string]int{"zz": 1, "aa": 2, "mm": 3}

	first, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := c.Encode(map[string]int{"mm": 3, "zz": 1, "aa": 2})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encode produced differing bytes:\n%x\n%x", first, again)
		}
	}
}

func TestCBORTimeRFC3339(t *testing.T) {
	c := MustCBOR[time.Time](true)
	ts := time.Date(2025, 11, 3, 12, 30, 45, 123456789, time.UTC)
	b, err := c.Encode(ts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(ts) {
		t.Fatalf("time round trip: got %v want %v", got, ts)
	}
}

func TestLimitBothDirections(t *testing.T) {
	c := Limit[string]{Inner: String{}, Max: 4}

	if _, err := c.Encode("ok"); err != nil {
		t.Fatalf("Encode under limit: %v", err)
	}
	if _, err := c.Encode(strings.Repeat("x", 5)); err == nil {
		t.Fatal("Encode over limit: expected error")
	}

	if _, err := c.Decode([]byte("okay")); err != nil {
		t.Fatalf("Decode at limit: %v", err)
	}
	if _, err := c.Decode([]byte("toolong")); err == nil {
		t.Fatal("Decode over limit: expected error")
	}

	// Max <= 0 disables the cap
	open := Limit[string]{Inner: String{}}
	if _, err := open.Encode(strings.Repeat("x", 100)); err != nil {
		t.Fatalf("unlimited Encode: %v", err)
	}
}
